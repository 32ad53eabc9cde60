// Package app wires all docent subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives the UI (or headless mode) and the diagnostics
// listener, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithMedia, WithPeers,
// WithUI). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/docent/internal/archive"
	"github.com/MrWong99/docent/internal/chat"
	"github.com/MrWong99/docent/internal/config"
	"github.com/MrWong99/docent/internal/health"
	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/internal/resilience"
	"github.com/MrWong99/docent/internal/router"
	"github.com/MrWong99/docent/internal/session"
	"github.com/MrWong99/docent/internal/tools"
	"github.com/MrWong99/docent/internal/tools/pdftools"
	"github.com/MrWong99/docent/internal/tui"
	"github.com/MrWong99/docent/pkg/audio"
	"github.com/MrWong99/docent/pkg/backend"
	"github.com/MrWong99/docent/pkg/rtc"
)

// UIFunc runs an interactive front end until the user quits or ctx ends.
// [tui.Run] is the default.
type UIFunc func(ctx context.Context, deps tui.Deps) error

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	media audio.Device
	peers rtc.Factory
	ui    UIFunc

	// Subsystems, initialised in New and torn down in Shutdown.
	client     *backend.Client
	breaker    *resilience.CircuitBreaker
	log        *chat.Log
	banners    *chat.Notifier
	service    *chat.Service
	dispatcher *tools.Dispatcher
	controller *session.Controller
	archive    *archive.Store
	diag       *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMedia injects the microphone/speaker instead of creating one from the
// audio registry. The caller keeps ownership of it.
func WithMedia(d audio.Device) Option {
	return func(a *App) { a.media = d }
}

// WithPeers injects the peer connection factory instead of the pion one.
func WithPeers(f rtc.Factory) Option {
	return func(a *App) { a.peers = f }
}

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithUI replaces the terminal UI.
func WithUI(fn UIFunc) Option {
	return func(a *App) { a.ui = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. reg supplies the audio
// device named in cfg.Audio.Device unless [WithMedia] is given.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, ui: tui.Run}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Backend client ────────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	// ── 2. Audio device + peer factory ───────────────────────────────────
	if err := a.initMedia(reg); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 3. Chat state + workflows ────────────────────────────────────────
	a.log = chat.NewLog()
	a.banners = chat.NewNotifier(cfg.UI.SuccessBanner, cfg.UI.ErrorBanner)
	a.service = chat.NewService(a.client, a.log, a.banners)

	// ── 4. Transcript archive ────────────────────────────────────────────
	if err := a.initArchive(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 5. Remote functions ──────────────────────────────────────────────
	docTools, err := pdftools.NewTools(a.client, cfg.Backend.DocumentDir)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init tools: %w", err)
	}
	d, err := tools.NewDispatcher(docTools, tools.WithMetrics(a.metrics))
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init tools: %w", err)
	}
	a.dispatcher = d

	// ── 6. Voice session controller ──────────────────────────────────────
	a.controller = session.NewController(a.media, a.peers, a.client,
		session.WithDataChannel(cfg.Realtime.DataChannel),
		session.WithBinder(a.bind),
		session.WithMetrics(a.metrics),
	)
	a.controller.OnStateChange(a.stampActive)

	// ── 7. Diagnostics listener ──────────────────────────────────────────
	if addr := cfg.Telemetry.DiagnosticsAddr; addr != "" {
		a.diag = health.NewServer(addr, health.New(health.Backend(a.client)), a.metrics)
	}

	slog.Info("app initialised",
		"backend", a.client.BaseURL(),
		"audio", a.media.Format().String(),
		"tools", len(a.dispatcher.Definitions()),
		"archive", cfg.Archive.Path,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initBackend builds the REST client, optionally behind a circuit breaker.
func (a *App) initBackend() error {
	bc := a.cfg.Backend
	opts := []backend.Option{
		backend.WithHTTPClient(observe.HTTPClient(a.metrics)),
		backend.WithTimeout(bc.Timeout),
	}
	if bc.CircuitBreaker.Enabled {
		a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "backend",
			MaxFailures:  bc.CircuitBreaker.MaxFailures,
			ResetTimeout: bc.CircuitBreaker.ResetTimeout,
			OnStateChange: func(from, to resilience.State) {
				slog.Warn("backend circuit breaker changed state", "from", from.String(), "to", to.String())
			},
		})
		opts = append(opts, backend.WithBreaker(a.breaker))
	}
	c, err := backend.New(bc.BaseURL, opts...)
	if err != nil {
		return err
	}
	a.client = c
	return nil
}

// initMedia opens the configured audio device and the peer factory if they
// were not injected.
func (a *App) initMedia(reg *config.Registry) error {
	if a.media == nil {
		dev, err := reg.CreateAudio(a.cfg.Audio)
		if err != nil {
			return err
		}
		a.media = dev
		a.closers = append(a.closers, dev.Close)
	}
	if a.peers == nil {
		a.peers = rtc.NewFactory(
			rtc.WithICEServers(a.cfg.Realtime.ICEServers...),
			rtc.WithOutputFormat(a.media.Format()),
		)
	}
	return nil
}

// initArchive opens the bbolt archive and records every appended entry.
func (a *App) initArchive() error {
	path := a.cfg.Archive.Path
	if path == "" {
		return nil
	}
	store, err := archive.Open(path)
	if err != nil {
		return err
	}
	a.archive = store
	a.closers = append(a.closers, store.Close)

	a.log.Subscribe(func(c chat.Change) {
		if c.Kind != chat.ChangeAppend {
			return
		}
		if err := store.Record(c.Entry); err != nil && !errors.Is(err, archive.ErrClosed) {
			slog.Warn("failed to archive chat entry", "session_id", c.Entry.Session, "err", err)
		}
	})
	slog.Info("archiving chat entries", "path", path)
	return nil
}

// bind attaches a router to the data channel of a new voice session. Its
// transcripts are stamped by the sink; the log's current session is set only
// when the start commits (stampActive) and cleared only if it is still ours.
func (a *App) bind(ctx context.Context, sessionID string, dc rtc.DataChannel) (func() error, error) {
	rc := a.cfg.Realtime
	r := router.New(ctx, dc, a.dispatcher, &sink{session: sessionID, log: a.log, banners: a.banners},
		router.Config{
			InboxSize:            rc.InboxSize,
			RespondAfterToolCall: rc.RespondAfterToolCall,
			FlushPendingOnStop:   rc.FlushPending(),
		},
		router.WithLogger(slog.With("session_id", sessionID)),
		router.WithMetrics(a.metrics),
	)
	return func() error {
		err := r.Close()
		a.log.EndSession(sessionID)
		return err
	}, nil
}

// stampActive points the log's current session at the committed session.
func (a *App) stampActive(st session.State) {
	if st != session.StateActive {
		return
	}
	if id := a.controller.SessionID(); id != "" {
		a.log.SetSession(id)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves diagnostics and drives the UI until the user quits or ctx is
// cancelled. With the UI disabled it runs headless: the voice session starts
// immediately and the chat log is written to the process log.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.diag != nil {
		g.Go(func() error {
			slog.Info("diagnostics listening", "addr", a.diag.Addr)
			if err := a.diag.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: diagnostics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return a.diag.Shutdown(context.WithoutCancel(gctx))
		})
	}

	g.Go(func() error {
		// The front end ending ends the application.
		defer cancel()
		if a.cfg.UI.IsEnabled() {
			return a.ui(gctx, a.Deps())
		}
		return a.runHeadless(gctx)
	})

	return g.Wait()
}

// Deps returns the collaborators handed to the UI.
func (a *App) Deps() tui.Deps {
	return tui.Deps{
		Log:       a.log,
		Banners:   a.banners,
		Workflows: a.service,
		Voice:     a.controller,
	}
}

// runHeadless starts the voice session and mirrors the chat log and banners
// into the process log until ctx ends.
func (a *App) runHeadless(ctx context.Context) error {
	a.log.Subscribe(func(c chat.Change) {
		if c.Kind == chat.ChangeAppend {
			slog.Info("chat", "role", string(c.Entry.Role), "text", c.Entry.Text, "session_id", c.Entry.Session)
		}
	})
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	a.banners.Subscribe(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, b := range a.banners.Active() {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			if b.Level == chat.LevelError {
				slog.Warn("banner", "text", b.Text)
			} else {
				slog.Info("banner", "text", b.Text)
			}
		}
	})

	if err := a.controller.Start(ctx); err != nil {
		return fmt.Errorf("app: start voice session: %w", err)
	}
	slog.Info("voice session active", "session_id", a.controller.SessionID())
	<-ctx.Done()
	return nil
}

// Controller exposes the voice session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Service exposes the chat and document workflows.
func (a *App) Service() *chat.Service { return a.service }

// Archive returns the transcript archive, or nil when archiving is disabled.
func (a *App) Archive() *archive.Store { return a.archive }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the voice session and then closes all subsystems. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.controller.Stop(); err != nil {
			slog.Warn("voice session stop error", "err", err)
		}
		a.banners.Clear()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New acquired before failing.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
	a.closers = nil
}
