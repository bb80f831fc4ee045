// ABOUTME: Opus audio decoder
// ABOUTME: Decodes single Opus packets to mono float32 samples
package decode

import (
	"fmt"

	"github.com/beatpackz/cookmode/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is 120ms at 48kHz, the largest frame a packet can carry
const maxOpusFrame = 5760

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (*OpusDecoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}

	channels := format.Channels
	if channels == 0 {
		channels = 1
	}
	format.Channels = channels

	dec, err := opus.NewDecoder(format.SampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
	}, nil
}

// Decode converts an Opus packet to float32 samples
func (d *OpusDecoder) Decode(data []byte) ([]float32, error) {
	pcm := make([]float32, maxOpusFrame*d.format.Channels)

	n, err := d.decoder.DecodeFloat32(data, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	return audio.Mono(pcm[:n*d.format.Channels], d.format.Channels), nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
