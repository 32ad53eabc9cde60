package app

import (
	"log/slog"

	"github.com/MrWong99/docent/internal/chat"
	"github.com/MrWong99/docent/internal/router"
	"github.com/MrWong99/docent/internal/transcript"
)

var _ router.Sink = (*sink)(nil)

// sink renders one session's router output into the chat log and banners.
type sink struct {
	session string
	log     *chat.Log
	banners *chat.Notifier
}

func (s *sink) Finalize(role transcript.Role, text string) {
	s.log.FinalizeIn(s.session, chatRole(role), text)
}

func (s *sink) Live(role transcript.Role, text string) {
	s.log.SetLive(chatRole(role), text)
}

func (s *sink) RemoteError(message string) {
	slog.Warn("voice service reported an error", "session_id", s.session, "message", message)
	s.banners.Error("Voice service error: " + message)
}

func chatRole(r transcript.Role) chat.Role {
	if r == transcript.RoleAssistant {
		return chat.RoleAssistant
	}
	return chat.RoleUser
}
