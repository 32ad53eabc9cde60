package malgo

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/docent/pkg/audio"
)

// maxBufferedSeconds bounds queued playback; older audio is dropped first.
const maxBufferedSeconds = 10

// playbackStream feeds queued PCM to miniaudio's pull callback and pads with
// silence when the queue runs dry.
type playbackStream struct {
	format audio.Format
	device *malgo.Device

	mu     sync.Mutex
	queue  []byte
	closed bool
}

func (p *playbackStream) init(audioCtx *malgo.AllocatedContext) error {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * p.format.Channels

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = uint32(p.format.SampleRate)
	cfg.Playback.Format = format
	cfg.Playback.Channels = uint32(p.format.Channels)
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = uint32(p.format.SampleRate / 10) // ~100ms of audio
	cfg.Periods = 4

	var err error
	p.device, err = malgo.InitDevice(audioCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: p.processAudio(bytesPerFrame),
	})
	if err != nil {
		return fmt.Errorf("malgo: init playback device: %w", err)
	}
	return nil
}

func (p *playbackStream) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		p.mu.Lock()
		n := copy(pOutput[:need], p.queue)
		p.queue = p.queue[n:]
		p.mu.Unlock()
		clear(pOutput[n:need])
	}
}

// Write queues pcm for playback.
func (p *playbackStream) Write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("malgo: playback stream closed")
	}
	p.queue = append(p.queue, pcm...)
	limit := maxBufferedSeconds * p.format.SampleRate * p.format.Channels * 2
	if over := len(p.queue) - limit; over > 0 {
		p.queue = p.queue[over:]
	}
	return nil
}

// Clear discards queued audio.
func (p *playbackStream) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
}

// Close stops playback and releases the device. Idempotent.
func (p *playbackStream) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.queue = nil
	p.mu.Unlock()

	if p.device.IsStarted() {
		_ = p.device.Stop()
	}
	p.device.Uninit()
	return nil
}
