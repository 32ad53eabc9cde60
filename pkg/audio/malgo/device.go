// Package malgo implements [audio.Device] on top of miniaudio via
// github.com/gen2brain/malgo, giving the voice session access to the default
// system microphone and speaker.
package malgo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/docent/pkg/audio"
)

var _ audio.Device = (*Device)(nil)

// Device owns one miniaudio context shared by the capture and playback
// streams it opens.
type Device struct {
	format audio.Format

	// audioContext is only kept to uninitialise it on Close.
	audioContext *malgo.AllocatedContext

	mu     sync.Mutex
	closed bool
}

// New initialises a miniaudio context for the given PCM format.
func New(format audio.Format) (*Device, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 || format.FrameMs <= 0 {
		return nil, fmt.Errorf("malgo: invalid format %s", format)
	}
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Device{format: format, audioContext: audioCtx}, nil
}

// Format returns the PCM layout of both streams.
func (d *Device) Format() audio.Format { return d.format }

// OpenInput initialises a capture device. Failures are reported as
// [audio.ErrPermissionDenied] since miniaudio does not distinguish a missing
// device from a refused one.
func (d *Device) OpenInput(_ context.Context) (audio.Input, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("malgo: device closed")
	}
	in := &captureStream{format: d.format}
	if err := in.init(d.audioContext); err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrPermissionDenied, err)
	}
	return in, nil
}

// OpenOutput initialises and starts a playback device.
func (d *Device) OpenOutput(_ context.Context) (audio.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("malgo: device closed")
	}
	out := &playbackStream{format: d.format}
	if err := out.init(d.audioContext); err != nil {
		return nil, err
	}
	if err := out.device.Start(); err != nil {
		out.device.Uninit()
		return nil, fmt.Errorf("malgo: start playback device: %w", err)
	}
	return out, nil
}

// Close releases the miniaudio context. Idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.audioContext.Uninit()
	d.audioContext.Free()
	return err
}
