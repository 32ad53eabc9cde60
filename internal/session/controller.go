// Package session owns the single realtime voice session of the client.
//
// A [Controller] opens the microphone, builds a WebRTC peer connection with
// one data channel, exchanges SDP with the backend and commits the result as
// the active session. At most one session exists at a time. Every start
// attempt carries a generation number; a Stop issued while negotiation is in
// flight invalidates the attempt and its result is torn down instead of
// committed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/docent/internal/observe"
	"github.com/MrWong99/docent/pkg/audio"
	"github.com/MrWong99/docent/pkg/rtc"
)

const defaultDataChannel = "response"

// State is the lifecycle state of the controller.
type State int

const (
	StateInactive State = iota
	StateStarting
	StateActive
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Negotiator exchanges the local SDP offer for the remote answer.
// [*backend.Client] satisfies it.
type Negotiator interface {
	Negotiate(ctx context.Context, offer string) (string, error)
}

// Binder attaches per-session consumers to the data channel before the offer
// is created and returns the function that detaches them. ctx outlives the
// Start call and is cancelled when the session ends.
type Binder func(ctx context.Context, sessionID string, dc rtc.DataChannel) (unbind func() error, err error)

// Option configures a [Controller].
type Option func(*Controller)

// WithDataChannel sets the data channel label. Default: "response".
func WithDataChannel(label string) Option {
	return func(c *Controller) {
		c.label = label
	}
}

// WithBinder sets the data channel binder.
func WithBinder(b Binder) Option {
	return func(c *Controller) {
		c.bind = b
	}
}

// WithMetrics records setup latency, failures and active sessions in m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller is safe for concurrent use. Network and media calls run outside
// its lock.
type Controller struct {
	media      audio.Device
	peers      rtc.Factory
	negotiator Negotiator
	bind       Binder
	label      string
	metrics    *observe.Metrics

	mu        sync.Mutex
	state     State
	gen       uint64
	active    *live
	observers []func(State)

	notifyMu sync.Mutex
}

// live holds every resource of one session. Fields are nil until acquired;
// teardown releases whatever is set.
type live struct {
	id      string
	started time.Time
	cancel  context.CancelFunc

	input  audio.Input
	output audio.Output
	peer   rtc.PeerConnection
	dc     rtc.DataChannel
	unbind func() error
}

// NewController creates an inactive controller.
func NewController(media audio.Device, peers rtc.Factory, negotiator Negotiator, opts ...Option) *Controller {
	c := &Controller{
		media:      media,
		peers:      peers,
		negotiator: negotiator,
		label:      defaultDataChannel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnStateChange registers fn to be called after every transition. Callbacks
// run outside the controller lock, one at a time.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the id of the active session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.id
}

// Toggle starts an inactive controller and stops it otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.State() == StateInactive {
		return c.Start(ctx)
	}
	return c.Stop()
}

// Start opens a session. It is a no-op while a session is active or
// starting. Failures are returned as [*SetupError]; a start invalidated by
// Stop returns [ErrSuperseded].
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInactive {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.state = StateStarting
	c.mu.Unlock()
	c.notify(StateStarting)

	begin := time.Now()
	s, err := c.build(ctx, gen)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		s.teardown()
		slog.Info("session start superseded", "session_id", s.id)
		return ErrSuperseded
	}
	if err != nil {
		c.state = StateInactive
		c.mu.Unlock()
		s.teardown()
		c.recordFailure(ctx, err)
		c.notify(StateInactive)
		slog.Warn("session start failed", "session_id", s.id, "err", err)
		return err
	}
	c.active = s
	c.state = StateActive
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SessionSetupDuration.Record(ctx, time.Since(begin).Seconds())
		c.metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Info("session started", "session_id", s.id, "setup", time.Since(begin))
	c.notify(StateActive)
	return nil
}

// Stop ends the session. While inactive it does nothing. While starting it
// invalidates the in-flight attempt.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.state {
	case StateInactive:
		c.mu.Unlock()
		return nil
	case StateStarting:
		c.gen++
		c.state = StateInactive
		c.mu.Unlock()
		c.notify(StateInactive)
		return nil
	}
	s := c.active
	c.active = nil
	c.gen++
	c.state = StateInactive
	c.mu.Unlock()

	err := s.teardown()
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	slog.Info("session stopped", "session_id", s.id, "duration", time.Since(s.started))
	c.notify(StateInactive)
	return err
}

// build acquires every resource of a new session. On error the partially
// built session is returned for teardown.
func (c *Controller) build(ctx context.Context, gen uint64) (*live, error) {
	s := &live{id: uuid.NewString(), started: time.Now()}
	log := slog.With("session_id", s.id)

	var err error
	if s.input, err = c.media.OpenInput(ctx); err != nil {
		return s, setupError(KindPermission, err)
	}
	if s.output, err = c.media.OpenOutput(ctx); err != nil {
		return s, setupError(KindPermission, err)
	}

	if s.peer, err = c.peers.NewPeer(ctx); err != nil {
		return s, setupError(KindOffer, err)
	}
	if s.dc, err = s.peer.CreateDataChannel(c.label); err != nil {
		return s, setupError(KindOffer, err)
	}
	if c.bind != nil {
		var sessCtx context.Context
		sessCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
		if s.unbind, err = c.bind(sessCtx, s.id, s.dc); err != nil {
			return s, setupError(KindOffer, err)
		}
	}
	sender, err := s.peer.AddAudioInput(c.media.Format())
	if err != nil {
		return s, setupError(KindOffer, err)
	}
	s.peer.PlayRemoteAudio(s.output)

	offer, err := s.peer.CreateOffer(ctx)
	if err != nil {
		return s, setupError(KindOffer, err)
	}
	if !c.current(gen) {
		return s, ErrSuperseded
	}

	answer, err := c.negotiator.Negotiate(ctx, offer)
	if err != nil {
		return s, setupError(KindNegotiation, err)
	}
	if err := s.peer.AcceptAnswer(ctx, answer); err != nil {
		return s, setupError(KindNegotiation, err)
	}

	var dropped int
	err = s.input.Start(func(f audio.AudioFrame) {
		if err := sender.WriteFrame(f); err != nil {
			// Called from the audio thread; log once per burst.
			if dropped == 0 {
				log.Debug("session: microphone frame dropped", "err", err)
			}
			dropped++
			return
		}
		dropped = 0
	})
	if err != nil {
		return s, setupError(KindPermission, fmt.Errorf("start microphone: %w", err))
	}
	return s, nil
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Controller) notify(st State) {
	c.mu.Lock()
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for _, fn := range observers {
		fn(st)
	}
}

func (c *Controller) recordFailure(ctx context.Context, err error) {
	if c.metrics == nil {
		return
	}
	var se *SetupError
	if errors.As(err, &se) {
		c.metrics.RecordSessionFailure(ctx, string(se.Kind))
	}
}

// teardown detaches consumers, stops inbound receivers, closes the data
// channel and the connection, then releases the audio devices.
func (s *live) teardown() error {
	var errs []error
	if s.unbind != nil {
		if err := s.unbind(); err != nil {
			errs = append(errs, fmt.Errorf("unbind: %w", err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.peer != nil {
		if err := s.peer.StopReceivers(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.dc != nil {
		if err := s.dc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data channel: %w", err))
		}
	}
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.input != nil {
		if err := s.input.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close microphone: %w", err))
		}
	}
	if s.output != nil {
		if err := s.output.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close speaker: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("session: teardown: %w", err)
	}
	return nil
}
