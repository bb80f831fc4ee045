// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for audio chunk encoders and codec selection
package encode

import (
	"fmt"

	"github.com/beatpackz/cookmode/pkg/audio"
)

// Encoder encodes mono float32 blocks into one chunk payload
type Encoder interface {
	// Encode converts samples to encoded audio data
	Encode(samples []float32) ([]byte, error)

	// Codec names the payload format for the chunk header
	Codec() string

	// Close releases encoder resources
	Close() error
}

// New returns the encoder for format.Codec. frameSize is only consulted
// by Opus, which needs fixed-length frames.
func New(format audio.Format, frameSize int) (Encoder, error) {
	switch format.Codec {
	case "", audio.CodecPCM16:
		return NewPCM16(), nil
	case audio.CodecWAV:
		return NewWAV(format.SampleRate), nil
	case audio.CodecOpus:
		enc, err := NewOpus(format, frameSize)
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}
