package malgo

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/docent/pkg/audio"
)

// captureStream re-chunks miniaudio's period-sized callbacks into fixed
// frames of format.FrameBytes().
type captureStream struct {
	format audio.Format
	device *malgo.Device

	mu      sync.Mutex
	onFrame func(audio.AudioFrame)
	pending []byte
	sent    int // frames delivered, for timestamps
	closed  bool
}

func (c *captureStream) init(audioCtx *malgo.AllocatedContext) error {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * c.format.Channels

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(c.format.SampleRate)
	cfg.Capture.Format = format
	cfg.Capture.Channels = uint32(c.format.Channels)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = uint32(c.format.FrameSamples())
	cfg.Periods = 3

	var err error
	c.device, err = malgo.InitDevice(audioCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.deliver(pInput[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("malgo: init capture device: %w", err)
	}
	return nil
}

// deliver appends captured bytes and emits every complete frame.
func (c *captureStream) deliver(data []byte) {
	c.mu.Lock()
	if c.onFrame == nil {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, data...)
	size := c.format.FrameBytes()
	var frames [][]byte
	for len(c.pending) >= size {
		frame := make([]byte, size)
		copy(frame, c.pending[:size])
		c.pending = c.pending[size:]
		frames = append(frames, frame)
	}
	cb := c.onFrame
	start := c.sent
	c.sent += len(frames)
	c.mu.Unlock()

	frameDur := time.Duration(c.format.FrameMs) * time.Millisecond
	for i, f := range frames {
		cb(audio.AudioFrame{
			Data:       f,
			SampleRate: c.format.SampleRate,
			Channels:   c.format.Channels,
			Timestamp:  time.Duration(start+i) * frameDur,
		})
	}
}

// Start begins capture.
func (c *captureStream) Start(onFrame func(audio.AudioFrame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("malgo: capture stream closed")
	}
	if c.device.IsStarted() {
		return nil
	}
	c.onFrame = onFrame
	if err := c.device.Start(); err != nil {
		c.onFrame = nil
		return fmt.Errorf("malgo: start capture device: %w", err)
	}
	return nil
}

// Close stops capture and releases the device. Idempotent.
func (c *captureStream) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.onFrame = nil
	c.pending = nil
	c.mu.Unlock()

	// Stop blocks until the callback returns; the lock must not be held.
	if c.device.IsStarted() {
		_ = c.device.Stop()
	}
	c.device.Uninit()
	return nil
}
