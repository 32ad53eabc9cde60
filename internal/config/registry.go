package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/docent/pkg/audio"
)

// ErrDeviceNotRegistered is returned by [Registry.CreateAudio] when no factory
// has been registered under the requested device name.
var ErrDeviceNotRegistered = errors.New("config: audio device not registered")

// Registry maps audio device names to their constructor functions. It is
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	audio map[string]func(AudioConfig) (audio.Device, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{audio: make(map[string]func(AudioConfig) (audio.Device, error))}
}

// RegisterAudio registers an audio device factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (audio.Device, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateAudio instantiates the device registered under cfg.Device.
// Returns [ErrDeviceNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateAudio(cfg AudioConfig) (audio.Device, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Device]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotRegistered, cfg.Device)
	}
	return factory(cfg)
}

// AudioNames returns the registered device names, sorted.
func (r *Registry) AudioNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.audio))
	for n := range r.audio {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Format returns the PCM layout described by a.
func (a AudioConfig) Format() audio.Format {
	return audio.Format{SampleRate: a.SampleRate, Channels: a.Channels, FrameMs: a.FrameMs}
}
