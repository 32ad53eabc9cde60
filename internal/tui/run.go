package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/docent/internal/chat"
	"github.com/MrWong99/docent/internal/session"
	"github.com/MrWong99/docent/pkg/backend"
)

// Run shows the UI until the user quits or ctx is cancelled.
func Run(ctx context.Context, deps Deps) error {
	p := tea.NewProgram(New(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))

	pokes := make(chan struct{}, 1)
	poke := func() {
		select {
		case pokes <- struct{}{}:
		default:
		}
	}
	deps.Log.Subscribe(func(chat.Change) { poke() })
	deps.Banners.Subscribe(poke)
	deps.Workflows.OnMatches(func([]backend.Match) { poke() })
	deps.Voice.OnStateChange(func(session.State) { poke() })

	// Change callbacks may fire on the program's own goroutine, so they only
	// poke; this loop delivers coalesced refreshes.
	fwdCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		for {
			select {
			case <-fwdCtx.Done():
				return
			case <-pokes:
				p.Send(refreshMsg{})
			}
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
