// Package audio defines the local audio device abstractions used by the voice
// session: a microphone [Input] that delivers fixed-size PCM frames and a
// speaker [Output] that accepts PCM for playback.
//
// Concrete devices live in sub-packages (audio/malgo for real hardware);
// audio/mock has in-memory devices for tests.
//
// All PCM is signed 16-bit little-endian, interleaved when Channels > 1.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by [Device.OpenInput] when the operating
// system refuses microphone access or no capture device exists.
var ErrPermissionDenied = errors.New("audio: microphone access denied")

// AudioFrame is a single chunk of captured or decoded PCM audio.
type AudioFrame struct {
	// PCM audio data.
	Data []byte

	// SampleRate in Hz (48000 for WebRTC Opus).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Device opens microphone and speaker streams.
type Device interface {
	// OpenInput acquires the microphone. The returned Input is idle until
	// Start is called. Implementations wrap access failures with
	// [ErrPermissionDenied].
	OpenInput(ctx context.Context) (Input, error)

	// OpenOutput prepares speaker playback.
	OpenOutput(ctx context.Context) (Output, error)

	// Format reports the PCM layout both streams use.
	Format() Format

	// Close releases the device context. Streams must be closed first.
	Close() error
}

// Input is an open microphone stream.
type Input interface {
	// Start begins delivering frames of exactly Format().FrameBytes() to
	// onFrame. onFrame is called from the capture thread and must not block.
	Start(onFrame func(AudioFrame)) error

	// Close stops capture and releases the microphone. Idempotent.
	Close() error
}

// Output is an open speaker stream.
type Output interface {
	// Write queues PCM for playback.
	Write(pcm []byte) error

	// Clear discards queued audio.
	Clear()

	// Close stops playback. Idempotent.
	Close() error
}
