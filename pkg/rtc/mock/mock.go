// Package mock provides in-memory implementations of the [rtc] interfaces for
// unit tests. Every mock records its calls and exposes fields that control
// return values. All mocks are safe for concurrent use.
//
// Typical usage:
//
//	f := &mock.Factory{Answer: "v=0..."}
//	ctrl := session.NewController(f, ...)
//	_ = ctrl.Start(ctx)
//	dc := f.LastPeer().LastChannel()
//	dc.Open()
//	dc.Deliver([]byte(`{"type":"..."}`))
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/docent/pkg/audio"
	"github.com/MrWong99/docent/pkg/rtc"
)

var (
	_ rtc.Factory        = (*Factory)(nil)
	_ rtc.PeerConnection = (*Peer)(nil)
	_ rtc.DataChannel    = (*DataChannel)(nil)
	_ rtc.AudioSender    = (*Sender)(nil)
)

// ErrClosed is returned by Send on a closed channel.
var ErrClosed = errors.New("mock: data channel closed")

// Offer is the SDP returned by [Peer.CreateOffer].
const Offer = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=docent\r\n"

// ─── Factory ──────────────────────────────────────────────────────────────────

// Factory is a mock [rtc.Factory].
type Factory struct {
	mu sync.Mutex

	// NewPeerErr is returned by NewPeer when non-nil.
	NewPeerErr error

	// OfferErr is copied to every new peer's OfferErr.
	OfferErr error

	// AnswerErr is copied to every new peer's AnswerErr.
	AnswerErr error

	// Peers holds every peer created, in order.
	Peers []*Peer
}

// NewPeer returns a new [Peer] or NewPeerErr.
func (f *Factory) NewPeer(_ context.Context) (rtc.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewPeerErr != nil {
		return nil, f.NewPeerErr
	}
	p := &Peer{OfferErr: f.OfferErr, AnswerErr: f.AnswerErr}
	f.Peers = append(f.Peers, p)
	return p, nil
}

// PeerCount returns how many peers were created.
func (f *Factory) PeerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Peers)
}

// LastPeer returns the most recent peer, or nil.
func (f *Factory) LastPeer() *Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Peers) == 0 {
		return nil
	}
	return f.Peers[len(f.Peers)-1]
}

// ─── Peer ─────────────────────────────────────────────────────────────────────

// Peer is a mock [rtc.PeerConnection].
type Peer struct {
	mu sync.Mutex

	// OfferErr is returned by CreateOffer when non-nil.
	OfferErr error

	// AnswerErr is returned by AcceptAnswer when non-nil.
	AnswerErr error

	channels []*DataChannel
	senders  []*Sender
	output   audio.Output
	answer   string

	CallCountStopReceivers int
	CallCountClose         int
}

func (p *Peer) CreateDataChannel(label string) (rtc.DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dc := &DataChannel{Label: label}
	p.channels = append(p.channels, dc)
	return dc, nil
}

func (p *Peer) AddAudioInput(format audio.Format) (rtc.AudioSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &Sender{Format: format}
	p.senders = append(p.senders, s)
	return s, nil
}

func (p *Peer) PlayRemoteAudio(out audio.Output) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = out
}

func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	p.mu.Lock()
	err := p.OfferErr
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Offer, nil
}

func (p *Peer) AcceptAnswer(_ context.Context, sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AnswerErr != nil {
		return p.AnswerErr
	}
	p.answer = sdp
	return nil
}

func (p *Peer) StopReceivers() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStopReceivers++
	return nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return nil
}

// Answer returns the SDP applied by AcceptAnswer.
func (p *Peer) Answer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answer
}

// Closed reports whether Close was called.
func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCountClose > 0
}

// ReceiversStopped reports whether StopReceivers was called.
func (p *Peer) ReceiversStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCountStopReceivers > 0
}

// LastChannel returns the most recently created data channel, or nil.
func (p *Peer) LastChannel() *DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.channels) == 0 {
		return nil
	}
	return p.channels[len(p.channels)-1]
}

// LastSender returns the most recently created audio sender, or nil.
func (p *Peer) LastSender() *Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.senders) == 0 {
		return nil
	}
	return p.senders[len(p.senders)-1]
}

// Output returns the output passed to PlayRemoteAudio.
func (p *Peer) Output() audio.Output {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}

// ─── DataChannel ──────────────────────────────────────────────────────────────

// DataChannel is a mock [rtc.DataChannel]. Tests drive it with Open and
// Deliver and inspect what was sent with Sent.
type DataChannel struct {
	Label string

	mu        sync.Mutex
	onOpen    func()
	onMessage func([]byte)
	sent      []string
	closed    bool
}

func (d *DataChannel) OnOpen(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onOpen = fn
}

func (d *DataChannel) OnMessage(fn func([]byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = fn
}

func (d *DataChannel) Send(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.sent = append(d.sent, text)
	return nil
}

func (d *DataChannel) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Open fires the OnOpen callback, if any.
func (d *DataChannel) Open() {
	d.mu.Lock()
	fn := d.onOpen
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Deliver fires the OnMessage callback with data, if any.
func (d *DataChannel) Deliver(data []byte) {
	d.mu.Lock()
	fn := d.onMessage
	d.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// Sent returns a snapshot of every message sent.
func (d *DataChannel) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

// Closed reports whether Close was called.
func (d *DataChannel) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ─── Sender ───────────────────────────────────────────────────────────────────

// Sender is a mock [rtc.AudioSender] that records frames.
type Sender struct {
	Format audio.Format

	mu     sync.Mutex
	frames []audio.AudioFrame
}

func (s *Sender) WriteFrame(frame audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

// Frames returns a snapshot of every frame written.
func (s *Sender) Frames() []audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.AudioFrame(nil), s.frames...)
}
