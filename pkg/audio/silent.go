package audio

import "context"

var _ Device = (*Silent)(nil)

// Silent is a [Device] with no hardware behind it: the microphone never
// produces frames and playback is discarded. It lets text-only and headless
// setups run a voice session without audio hardware.
type Silent struct {
	format Format
}

// NewSilent returns a Silent device reporting format.
func NewSilent(format Format) *Silent {
	return &Silent{format: format}
}

// OpenInput returns an input that never emits.
func (s *Silent) OpenInput(context.Context) (Input, error) { return silentInput{}, nil }

// OpenOutput returns an output that discards writes.
func (s *Silent) OpenOutput(context.Context) (Output, error) { return silentOutput{}, nil }

// Format returns the configured format.
func (s *Silent) Format() Format { return s.format }

// Close is a no-op.
func (s *Silent) Close() error { return nil }

type silentInput struct{}

func (silentInput) Start(func(AudioFrame)) error { return nil }
func (silentInput) Close() error                  { return nil }

type silentOutput struct{}

func (silentOutput) Write([]byte) error { return nil }
func (silentOutput) Clear()             {}
func (silentOutput) Close() error       { return nil }
