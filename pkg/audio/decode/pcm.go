// ABOUTME: PCM16 and WAV chunk decoders
// ABOUTME: Turn raw or WAV-framed PCM16 bytes into mono float32 samples
package decode

import (
	"fmt"

	"github.com/beatpackz/cookmode/pkg/audio"
)

// PCM16Decoder decodes bare PCM16 little-endian mono payloads
type PCM16Decoder struct{}

// NewPCM16 creates a new PCM16 decoder
func NewPCM16() *PCM16Decoder {
	return &PCM16Decoder{}
}

// Decode converts PCM16 bytes to float32 samples
func (d *PCM16Decoder) Decode(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pcm16 payload")
	}
	return audio.DecodePCM16(data)
}

// Close releases resources
func (d *PCM16Decoder) Close() error {
	return nil
}

// WAVDecoder decodes WAV-framed payloads, downmixing to mono
type WAVDecoder struct{}

// NewWAV creates a new WAV chunk decoder
func NewWAV() *WAVDecoder {
	return &WAVDecoder{}
}

// Decode parses the WAV container and returns mono samples
func (d *WAVDecoder) Decode(data []byte) ([]float32, error) {
	buf, err := audio.ParseWAV(data)
	if err != nil {
		return nil, err
	}
	return audio.Mono(buf.Samples, buf.Format.Channels), nil
}

// Close releases resources
func (d *WAVDecoder) Close() error {
	return nil
}
