// Package mock provides in-memory implementations of [audio.Device],
// [audio.Input] and [audio.Output] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.Device{}
//	in, _ := dev.OpenInput(ctx)
//	_ = in.Start(func(f audio.AudioFrame) { ... })
//	dev.LastInput().Emit([]byte{...})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/docent/pkg/audio"
)

var (
	_ audio.Device = (*Device)(nil)
	_ audio.Input  = (*Input)(nil)
	_ audio.Output = (*Output)(nil)
)

// DefaultFormat is returned by [Device.Format] when FormatValue is zero.
var DefaultFormat = audio.Format{SampleRate: 48000, Channels: 1, FrameMs: 20}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// FormatValue is returned by Format. Zero means [DefaultFormat].
	FormatValue audio.Format

	// OpenInputErr is returned by OpenInput when non-nil.
	OpenInputErr error

	// OpenOutputErr is returned by OpenOutput when non-nil.
	OpenOutputErr error

	// Inputs holds every Input handed out, in order.
	Inputs []*Input

	// Outputs holds every Output handed out, in order.
	Outputs []*Output

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// OpenInput returns a new [Input] or OpenInputErr.
func (d *Device) OpenInput(_ context.Context) (audio.Input, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenInputErr != nil {
		return nil, d.OpenInputErr
	}
	in := &Input{format: d.format()}
	d.Inputs = append(d.Inputs, in)
	return in, nil
}

// OpenOutput returns a new [Output] or OpenOutputErr.
func (d *Device) OpenOutput(_ context.Context) (audio.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenOutputErr != nil {
		return nil, d.OpenOutputErr
	}
	out := &Output{}
	d.Outputs = append(d.Outputs, out)
	return out, nil
}

// Format returns FormatValue or [DefaultFormat].
func (d *Device) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format()
}

func (d *Device) format() audio.Format {
	if d.FormatValue == (audio.Format{}) {
		return DefaultFormat
	}
	return d.FormatValue
}

// Close records the call.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	return nil
}

// LastInput returns the most recently opened Input, or nil.
func (d *Device) LastInput() *Input {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Inputs) == 0 {
		return nil
	}
	return d.Inputs[len(d.Inputs)-1]
}

// LastOutput returns the most recently opened Output, or nil.
func (d *Device) LastOutput() *Output {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Outputs) == 0 {
		return nil
	}
	return d.Outputs[len(d.Outputs)-1]
}

// ─── Input ────────────────────────────────────────────────────────────────────

// Input is a mock microphone. Frames are injected with [Input.Emit].
type Input struct {
	mu      sync.Mutex
	format  audio.Format
	onFrame func(audio.AudioFrame)
	started bool

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Start registers onFrame.
func (i *Input) Start(onFrame func(audio.AudioFrame)) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onFrame = onFrame
	i.started = true
	return nil
}

// Emit delivers pcm to the registered callback. It is a no-op before Start or
// after Close.
func (i *Input) Emit(pcm []byte) {
	i.mu.Lock()
	cb := i.onFrame
	f := i.format
	i.mu.Unlock()
	if cb == nil {
		return
	}
	cb(audio.AudioFrame{Data: pcm, SampleRate: f.SampleRate, Channels: f.Channels})
}

// Started reports whether Start was called and Close was not.
func (i *Input) Started() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.started
}

// Closed reports whether Close was called at least once.
func (i *Input) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.CallCountClose > 0
}

// Close stops delivering frames.
func (i *Input) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.CallCountClose++
	i.onFrame = nil
	i.started = false
	return nil
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is a mock speaker that records written PCM.
type Output struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool

	// CallCountClear records how many times Clear was called.
	CallCountClear int
}

// Write records a copy of pcm.
func (o *Output) Write(pcm []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.written = append(o.written, append([]byte(nil), pcm...))
	return nil
}

// Clear records the call.
func (o *Output) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountClear++
}

// Close marks the output closed.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Written returns a snapshot of everything written so far.
func (o *Output) Written() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([][]byte, len(o.written))
	copy(out, o.written)
	return out
}

// Closed reports whether Close was called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
