// ABOUTME: Decoder interface definition for audio chunk payloads
// ABOUTME: Selects a chunk decoder by codec name
package decode

import (
	"fmt"

	"github.com/beatpackz/cookmode/pkg/audio"
)

// Decoder decodes one audio chunk payload to mono float32 samples
type Decoder interface {
	// Decode converts encoded audio data to float32 samples
	Decode(data []byte) ([]float32, error)

	// Close releases decoder resources
	Close() error
}

// New returns the chunk decoder for format.Codec. An empty codec is treated
// as raw PCM16.
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case "", audio.CodecPCM16:
		return NewPCM16(), nil
	case audio.CodecWAV:
		return NewWAV(), nil
	case audio.CodecOpus:
		dec, err := NewOpus(format)
		if err != nil {
			return nil, err
		}
		return dec, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}
