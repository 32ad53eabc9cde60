// Package realtime defines the JSON event vocabulary exchanged with the
// backend's real-time AI session over the WebRTC data channel.
//
// Outgoing events configure the session and answer function calls; incoming
// events carry transcripts, function call requests and errors. Only the fields
// the client consumes are modelled; unknown fields are ignored on decode so the
// client stays forward-compatible with new server event types.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Incoming event types.
const (
	TypeInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeInputTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeOutputItemDone              = "response.output_item.done"
	TypeOutputTranscriptDelta       = "response.audio_transcript.delta"
	TypeFunctionCallArgumentsDone   = "response.function_call_arguments.done"
	TypeError                       = "error"
)

// Outgoing event types.
const (
	TypeSessionUpdate          = "session.update"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"

	itemTypeFunctionCallOutput = "function_call_output"
)

// ── Outgoing ──────────────────────────────────────────────────────────────────

// SessionUpdate is sent once when the data channel opens.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionParams `json:"session"`
}

// SessionParams declares modalities and remotely callable functions.
type SessionParams struct {
	Modalities []string `json:"modalities"`
	Tools      []Tool   `json:"tools,omitempty"`
}

// Tool declares a function the remote model may call.
type Tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ConversationItemCreate inserts an item into the remote conversation. The
// client only uses it to return function call output.
type ConversationItemCreate struct {
	Type string           `json:"type"`
	Item ConversationItem `json:"item"`
}

// ConversationItem is the item payload of [ConversationItemCreate].
type ConversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

// NewSessionUpdate builds the session.update event advertising tools with
// text and audio modalities.
func NewSessionUpdate(tools []Tool) SessionUpdate {
	return SessionUpdate{
		Type: TypeSessionUpdate,
		Session: SessionParams{
			Modalities: []string{"text", "audio"},
			Tools:      tools,
		},
	}
}

// NewFunctionCallOutput wraps a serialised function result for callID.
func NewFunctionCallOutput(callID string, output json.RawMessage) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:   itemTypeFunctionCallOutput,
			CallID: callID,
			Output: string(output),
		},
	}
}

// ResponseCreate asks the model to produce a new response.
func ResponseCreate() map[string]string {
	return map[string]string{"type": TypeResponseCreate}
}

// ── Incoming ──────────────────────────────────────────────────────────────────

// ServerEvent is the union of all incoming event shapes the client reads.
// Fields that do not apply to Type are left at their zero value.
type ServerEvent struct {
	Type string `json:"type"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// *.delta
	Delta string `json:"delta,omitempty"`

	// response.output_item.done
	Item *OutputItem `json:"item,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// error
	Error *ErrorDetail `json:"error,omitempty"`
}

// OutputItem is the item carried by response.output_item.done.
type OutputItem struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// ContentPart is one element of an output item's content list.
type ContentPart struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ErrorDetail is the nested error object of an "error" event.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// AssistantTranscript returns item.content[0].transcript, or "" when any link
// in that chain is missing.
func (e *ServerEvent) AssistantTranscript() string {
	if e.Item == nil || len(e.Item.Content) == 0 {
		return ""
	}
	return e.Item.Content[0].Transcript
}

// ErrorMessage returns a printable message for an "error" event.
func (e *ServerEvent) ErrorMessage() string {
	if e.Error == nil || e.Error.Message == "" {
		return "unknown error"
	}
	return e.Error.Message
}

// Decode parses one data-channel message.
func Decode(data []byte) (*ServerEvent, error) {
	var evt ServerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("realtime: decode event: %w", err)
	}
	return &evt, nil
}
