// ABOUTME: PCM16 chunk encoders
// ABOUTME: Encodes float32 blocks to bare or WAV-framed PCM16 little-endian bytes
package encode

import (
	"github.com/beatpackz/cookmode/pkg/audio"
)

// PCM16Encoder encodes bare PCM16 little-endian mono
type PCM16Encoder struct{}

// NewPCM16 creates a new PCM16 encoder
func NewPCM16() *PCM16Encoder {
	return &PCM16Encoder{}
}

// Encode converts float32 samples to PCM16 bytes
func (e *PCM16Encoder) Encode(samples []float32) ([]byte, error) {
	return audio.EncodePCM16(samples), nil
}

// Codec returns the chunk codec name
func (e *PCM16Encoder) Codec() string { return audio.CodecPCM16 }

// Close releases resources
func (e *PCM16Encoder) Close() error {
	return nil
}

// WAVEncoder encodes PCM16 with a full WAV header on every chunk
type WAVEncoder struct {
	sampleRate int
}

// NewWAV creates a new WAV chunk encoder
func NewWAV(sampleRate int) *WAVEncoder {
	return &WAVEncoder{sampleRate: sampleRate}
}

// Encode converts float32 samples to a framed WAV payload
func (e *WAVEncoder) Encode(samples []float32) ([]byte, error) {
	return audio.FrameWAV(audio.EncodePCM16(samples), e.sampleRate, 1), nil
}

// Codec returns the chunk codec name
func (e *WAVEncoder) Codec() string { return audio.CodecWAV }

// Close releases resources
func (e *WAVEncoder) Close() error {
	return nil
}
