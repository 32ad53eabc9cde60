package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/MrWong99/docent/pkg/audio"
	"github.com/MrWong99/docent/pkg/audio/opus"
)

var (
	_ Factory        = (*PionFactory)(nil)
	_ PeerConnection = (*pionPeer)(nil)
	_ DataChannel    = (*pionDataChannel)(nil)
	_ AudioSender    = (*pionSender)(nil)
)

// Option configures a [PionFactory].
type Option func(*PionFactory)

// WithICEServers sets the STUN/TURN URLs offered to ICE.
func WithICEServers(urls ...string) Option {
	return func(f *PionFactory) {
		f.iceServers = append(f.iceServers, urls...)
	}
}

// WithOutputFormat sets the PCM format remote audio is decoded into. It
// should match the playback device. Default: 48 kHz mono, 20 ms.
func WithOutputFormat(format audio.Format) Option {
	return func(f *PionFactory) {
		f.outFormat = format
	}
}

// PionFactory creates peer connections backed by github.com/pion/webrtc/v4.
type PionFactory struct {
	iceServers []string
	outFormat  audio.Format
}

// NewFactory returns a pion-backed [Factory].
func NewFactory(opts ...Option) *PionFactory {
	f := &PionFactory{
		outFormat: audio.Format{SampleRate: opus.SampleRate, Channels: 1, FrameMs: 20},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// NewPeer creates an unconnected peer connection.
func (f *PionFactory) NewPeer(_ context.Context) (PeerConnection, error) {
	cfg := webrtc.Configuration{}
	if len(f.iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: f.iceServers}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("rtc: new peer connection: %w", err)
	}
	return &pionPeer{pc: pc, outFormat: f.outFormat, done: make(chan struct{})}, nil
}

type pionPeer struct {
	pc        *webrtc.PeerConnection
	outFormat audio.Format

	closeOnce sync.Once
	done      chan struct{}

	// mu orders wg.Add in spawn against wg.Wait in Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// spawn runs fn on a goroutine that Close waits for. It reports false, and
// does not run fn, once Close has begun.
func (p *pionPeer) spawn(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
	return true
}

func (p *pionPeer) CreateDataChannel(label string) (DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("rtc: create data channel %q: %w", label, err)
	}
	return &pionDataChannel{dc: dc}, nil
}

func (p *pionPeer) AddAudioInput(format audio.Format) (AudioSender, error) {
	enc, err := opus.NewEncoder(format)
	if err != nil {
		return nil, fmt.Errorf("rtc: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opus.SampleRate, Channels: 2},
		"audio", "docent",
	)
	if err != nil {
		return nil, fmt.Errorf("rtc: create audio track: %w", err)
	}
	tr, err := p.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return nil, fmt.Errorf("rtc: add audio transceiver: %w", err)
	}

	// RTCP must be drained for interceptors such as NACK to work.
	if !p.spawn(func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := tr.Sender().Read(buf); err != nil {
				return
			}
		}
	}) {
		return nil, ErrPeerClosed
	}

	return &pionSender{
		track:    track,
		enc:      enc,
		duration: time.Duration(format.FrameMs) * time.Millisecond,
	}, nil
}

func (p *pionPeer) PlayRemoteAudio(out audio.Output) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		dec, err := opus.NewDecoder(p.outFormat)
		if err != nil {
			slog.Warn("rtc: remote audio not played", "err", err)
			return
		}
		p.spawn(func() { p.readTrack(track, dec, out) })
	})
}

// readTrack decodes inbound RTP until the track ends or the peer closes.
func (p *pionPeer) readTrack(track *webrtc.TrackRemote, dec *opus.Decoder, out audio.Output) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case <-p.done:
				default:
					slog.Debug("rtc: remote track ended", "track_id", track.ID(), "err", err)
				}
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		pcm, err := dec.Decode(pkt.Payload)
		if err != nil {
			slog.Debug("rtc: drop undecodable packet", "err", err)
			continue
		}
		if err := out.Write(pcm); err != nil {
			return
		}
	}
}

func (p *pionPeer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("rtc: create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("rtc: set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", fmt.Errorf("rtc: ice gathering: %w", ctx.Err())
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *pionPeer) AcceptAnswer(_ context.Context, sdp string) error {
	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	if err != nil {
		return fmt.Errorf("rtc: set remote description: %w", err)
	}
	return nil
}

func (p *pionPeer) StopReceivers() error {
	var errs []error
	for _, r := range p.pc.GetReceivers() {
		if err := r.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("rtc: stop receivers: %w", err)
	}
	return nil
}

func (p *pionPeer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)
		err = p.pc.Close()
		p.wg.Wait()
	})
	if err != nil {
		return fmt.Errorf("rtc: close peer connection: %w", err)
	}
	return nil
}

type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (d *pionDataChannel) OnOpen(fn func()) { d.dc.OnOpen(fn) }

func (d *pionDataChannel) OnMessage(fn func([]byte)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) { fn(msg.Data) })
}

func (d *pionDataChannel) Send(text string) error {
	if err := d.dc.SendText(text); err != nil {
		return fmt.Errorf("rtc: send on %q: %w", d.dc.Label(), err)
	}
	return nil
}

func (d *pionDataChannel) Close() error { return d.dc.Close() }

type pionSender struct {
	mu       sync.Mutex
	track    *webrtc.TrackLocalStaticSample
	enc      *opus.Encoder
	duration time.Duration
}

func (s *pionSender) WriteFrame(frame audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkt, err := s.enc.Encode(frame.Data)
	if err != nil {
		return fmt.Errorf("rtc: %w", err)
	}
	if err := s.track.WriteSample(media.Sample{Data: pkt, Duration: s.duration}); err != nil {
		return fmt.Errorf("rtc: write sample: %w", err)
	}
	return nil
}
