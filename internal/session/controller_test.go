package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/docent/pkg/audio"
	audiomock "github.com/MrWong99/docent/pkg/audio/mock"
	"github.com/MrWong99/docent/pkg/rtc"
	rtcmock "github.com/MrWong99/docent/pkg/rtc/mock"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

const testAnswer = "v=0\r\no=- answer\r\n"

type fakeNegotiator struct {
	calls atomic.Int32
	err   error

	// gate, when set, blocks Negotiate until closed.
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once

	mu     sync.Mutex
	offers []string
}

func (n *fakeNegotiator) Negotiate(ctx context.Context, offer string) (string, error) {
	n.calls.Add(1)
	n.mu.Lock()
	n.offers = append(n.offers, offer)
	n.mu.Unlock()
	if n.entered != nil {
		n.once.Do(func() { close(n.entered) })
	}
	if n.gate != nil {
		select {
		case <-n.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if n.err != nil {
		return "", n.err
	}
	return testAnswer, nil
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type fixture struct {
	media *audiomock.Device
	peers *rtcmock.Factory
	neg   *fakeNegotiator
	ctrl  *Controller
	rec   *stateRecorder

	unbinds atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		media: &audiomock.Device{},
		peers: &rtcmock.Factory{},
		neg:   &fakeNegotiator{},
		rec:   &stateRecorder{},
	}
	f.ctrl = NewController(f.media, f.peers, f.neg,
		WithBinder(func(_ context.Context, _ string, _ rtc.DataChannel) (func() error, error) {
			return func() error {
				f.unbinds.Add(1)
				return nil
			}, nil
		}),
	)
	f.ctrl.OnStateChange(f.rec.record)
	return f
}

// ─── tests ────────────────────────────────────────────────────────────────────

func TestStart_BuildsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.ctrl.State() != StateActive {
		t.Fatalf("state = %v", f.ctrl.State())
	}
	if f.ctrl.SessionID() == "" {
		t.Error("no session id")
	}

	peer := f.peers.LastPeer()
	if dc := peer.LastChannel(); dc == nil || dc.Label != "response" {
		t.Errorf("data channel = %+v", dc)
	}
	if peer.Answer() != testAnswer {
		t.Errorf("answer applied = %q", peer.Answer())
	}
	if peer.LastSender() == nil || peer.Output() == nil {
		t.Error("audio not wired")
	}
	if f.neg.offers[0] != rtcmock.Offer {
		t.Errorf("offer sent = %q", f.neg.offers[0])
	}
	if !f.media.LastInput().Started() {
		t.Error("microphone not started")
	}

	// Captured frames reach the peer's audio sender.
	f.media.LastInput().Emit(make([]byte, 1920))
	if got := len(peer.LastSender().Frames()); got != 1 {
		t.Errorf("sender got %d frames, want 1", got)
	}

	want := []State{StateStarting, StateActive}
	if got := f.rec.get(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestStart_TwiceNegotiatesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for range 2 {
		if err := f.ctrl.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	if got := f.neg.calls.Load(); got != 1 {
		t.Errorf("negotiations = %d, want 1", got)
	}
	if got := f.peers.PeerCount(); got != 1 {
		t.Errorf("peers = %d, want 1", got)
	}
}

func TestStart_WhileStartingIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.neg.gate = make(chan struct{})
	f.neg.entered = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- f.ctrl.Start(context.Background()) }()
	<-f.neg.entered

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Errorf("second Start: %v", err)
	}
	close(f.neg.gate)
	if err := <-errc; err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if got := f.neg.calls.Load(); got != 1 {
		t.Errorf("negotiations = %d, want 1", got)
	}
}

func TestStop_WhileInactiveDoesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if f.peers.PeerCount() != 0 || len(f.media.Inputs) != 0 || f.unbinds.Load() != 0 {
		t.Error("teardown performed while inactive")
	}
	if got := f.rec.get(); len(got) != 0 {
		t.Errorf("states = %v, want none", got)
	}
}

func TestStop_TearsDownEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	peer := f.peers.LastPeer()
	if !peer.ReceiversStopped() {
		t.Error("receivers not stopped")
	}
	if !peer.LastChannel().Closed() {
		t.Error("data channel not closed")
	}
	if !peer.Closed() {
		t.Error("peer not closed")
	}
	if !f.media.LastInput().Closed() || !f.media.LastOutput().Closed() {
		t.Error("audio not released")
	}
	if f.unbinds.Load() != 1 {
		t.Errorf("unbinds = %d, want 1", f.unbinds.Load())
	}
	if f.ctrl.State() != StateInactive || f.ctrl.SessionID() != "" {
		t.Error("slot not cleared")
	}
}

func TestStart_FailureKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*fixture)
		kind  FailureKind
	}{
		{"microphone denied", func(f *fixture) { f.media.OpenInputErr = audio.ErrPermissionDenied }, KindPermission},
		{"speaker unavailable", func(f *fixture) { f.media.OpenOutputErr = errors.New("no device") }, KindPermission},
		{"peer creation", func(f *fixture) { f.peers.NewPeerErr = errors.New("no ice") }, KindOffer},
		{"offer creation", func(f *fixture) { f.peers.OfferErr = errors.New("gathering") }, KindOffer},
		{"backend exchange", func(f *fixture) { f.neg.err = errors.New("502") }, KindNegotiation},
		{"bad answer", func(f *fixture) { f.peers.AnswerErr = errors.New("invalid sdp") }, KindNegotiation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			tt.setup(f)

			err := f.ctrl.Start(context.Background())
			if !errors.Is(err, ErrSetupFailed) {
				t.Fatalf("err = %v, want ErrSetupFailed", err)
			}
			var se *SetupError
			if !errors.As(err, &se) || se.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", se, tt.kind)
			}
			if f.ctrl.State() != StateInactive {
				t.Errorf("state = %v, want inactive", f.ctrl.State())
			}
			if got := f.rec.get(); len(got) != 2 || got[1] != StateInactive {
				t.Errorf("states = %v, indicator not reset", got)
			}

			// Nothing partially built stays open.
			if in := f.media.LastInput(); in != nil && !in.Closed() {
				t.Error("microphone left open")
			}
			if out := f.media.LastOutput(); out != nil && !out.Closed() {
				t.Error("speaker left open")
			}
			if p := f.peers.LastPeer(); p != nil && !p.Closed() {
				t.Error("peer left open")
			}
		})
	}
}

func TestStop_DuringStartSupersedes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.neg.gate = make(chan struct{})
	f.neg.entered = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- f.ctrl.Start(context.Background()) }()
	<-f.neg.entered

	if err := f.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(f.neg.gate)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("Start err = %v, want ErrSuperseded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
	}
	if f.ctrl.State() != StateInactive {
		t.Errorf("state = %v, want inactive", f.ctrl.State())
	}
	if !f.peers.LastPeer().Closed() || !f.media.LastInput().Closed() {
		t.Error("stale session not torn down")
	}

	// A fresh start after the superseded one works.
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if f.ctrl.State() != StateActive {
		t.Errorf("state = %v, want active", f.ctrl.State())
	}
}

func TestToggle_OnThenOff(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.ctrl.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.ctrl.State() != StateActive {
		t.Fatalf("after first toggle: %v", f.ctrl.State())
	}
	if err := f.ctrl.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.ctrl.State() != StateInactive {
		t.Fatalf("after second toggle: %v", f.ctrl.State())
	}
	states := f.rec.get()
	if states[len(states)-1] != StateInactive {
		t.Errorf("indicator = %v, want inactive", states[len(states)-1])
	}
}

func TestSetupError_Message(t *testing.T) {
	t.Parallel()

	err := &SetupError{Kind: KindNegotiation, Err: errors.New("status 500")}
	if err.Error() != "session: negotiation failed: status 500" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{StateInactive: "inactive", StateStarting: "starting", StateActive: "active", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
