// Package rtc abstracts the WebRTC peer connection that carries a realtime
// voice session: one outbound microphone track, one inbound assistant voice
// track and one data channel for JSON events.
//
// The interfaces decouple the session controller from pion so the controller
// can be tested without network or audio hardware. [NewFactory] returns the
// pion-backed implementation; package mock provides an in-memory one.
package rtc

import (
	"context"
	"errors"

	"github.com/MrWong99/docent/pkg/audio"
)

// ErrPeerClosed is returned when a peer is used after Close.
var ErrPeerClosed = errors.New("rtc: peer connection closed")

// Factory creates peer connections.
type Factory interface {
	NewPeer(ctx context.Context) (PeerConnection, error)
}

// PeerConnection is one negotiated WebRTC session.
type PeerConnection interface {
	// CreateDataChannel opens a data channel with the given label. It must be
	// called before CreateOffer so the channel is part of the offer.
	CreateDataChannel(label string) (DataChannel, error)

	// AddAudioInput attaches a send-receive Opus audio track fed with PCM
	// frames in format. The returned sender is safe for use from an audio
	// callback.
	AddAudioInput(format audio.Format) (AudioSender, error)

	// PlayRemoteAudio decodes every inbound audio track into out.
	PlayRemoteAudio(out audio.Output)

	// CreateOffer creates the local SDP offer and blocks until ICE gathering
	// completes, so the offer contains every candidate.
	CreateOffer(ctx context.Context) (string, error)

	// AcceptAnswer applies the remote SDP answer.
	AcceptAnswer(ctx context.Context, sdp string) error

	// StopReceivers stops every inbound track receiver.
	StopReceivers() error

	// Close tears down the connection and everything attached to it.
	Close() error
}

// DataChannel is a bidirectional text channel on a [PeerConnection].
type DataChannel interface {
	// OnOpen registers fn to run once the channel is open.
	OnOpen(fn func())

	// OnMessage registers fn to receive every inbound message payload.
	OnMessage(fn func(data []byte))

	// Send writes one text message.
	Send(text string) error

	Close() error
}

// AudioSender accepts captured PCM frames for transmission.
type AudioSender interface {
	WriteFrame(frame audio.AudioFrame) error
}
