// Package opus wraps layeh.com/gopus for the 48 kHz Opus streams carried over
// the realtime peer connection.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/docent/pkg/audio"
)

// SampleRate is the clock rate of every Opus RTP stream.
const SampleRate = 48000

// maxPacketBytes bounds one encoded frame. Opus never exceeds 1275 bytes per
// frame; the extra room covers multi-frame packets.
const maxPacketBytes = 4000

// Encoder turns fixed-size PCM frames into Opus packets.
type Encoder struct {
	enc    *gopus.Encoder
	format audio.Format
}

// NewEncoder creates an encoder for format. The sample rate must be one Opus
// supports natively (8, 12, 16, 24 or 48 kHz).
func NewEncoder(format audio.Format) (*Encoder, error) {
	enc, err := gopus.NewEncoder(format.SampleRate, format.Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	return &Encoder{enc: enc, format: format}, nil
}

// Encode encodes one frame of interleaved little-endian int16 PCM. The frame
// must be exactly format.FrameBytes() long.
func (e *Encoder) Encode(pcm []byte) ([]byte, error) {
	if len(pcm) != e.format.FrameBytes() {
		return nil, fmt.Errorf("opus: encode: frame is %d bytes, want %d", len(pcm), e.format.FrameBytes())
	}
	pkt, err := e.enc.Encode(audio.BytesToInt16s(pcm), e.format.FrameSamples(), maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return pkt, nil
}

// Format returns the PCM layout the encoder expects.
func (e *Encoder) Format() audio.Format { return e.format }

// Decoder turns Opus packets back into PCM. One decoder per remote stream, as
// decoder state carries across consecutive packets.
type Decoder struct {
	dec    *gopus.Decoder
	format audio.Format
}

// NewDecoder creates a decoder producing PCM in format.
func NewDecoder(format audio.Format) (*Decoder, error) {
	dec, err := gopus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec, format: format}, nil
}

// Decode decodes one packet into interleaved little-endian int16 PCM.
func (d *Decoder) Decode(pkt []byte) ([]byte, error) {
	// 120 ms is the longest duration a single Opus packet can carry.
	maxSamples := d.format.SampleRate * 120 / 1000
	pcm, err := d.dec.Decode(pkt, maxSamples, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}
