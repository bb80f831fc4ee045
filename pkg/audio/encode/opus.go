// ABOUTME: Opus audio encoder for bandwidth-efficient chunks
// ABOUTME: Wraps libopus to encode fixed-size mono float32 frames
package encode

import (
	"fmt"

	"github.com/beatpackz/cookmode/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket is the largest packet libopus will produce
const maxOpusPacket = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	frameSize  int
}

// NewOpus creates a new mono Opus encoder. frameSize is in samples and
// must be one of the Opus frame durations (2.5 to 60ms).
func NewOpus(format audio.Format, frameSize int) (*OpusEncoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}
	if !validOpusFrame(format.SampleRate, frameSize) {
		return nil, fmt.Errorf("invalid opus frame size %d at %dHz", frameSize, format.SampleRate)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, 1, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: format.SampleRate,
		frameSize:  frameSize,
	}, nil
}

// Encode converts one frame of float32 samples to an Opus packet
func (e *OpusEncoder) Encode(samples []float32) ([]byte, error) {
	if len(samples) != e.frameSize {
		return nil, fmt.Errorf("opus frame must be %d samples, got %d", e.frameSize, len(samples))
	}

	data := make([]byte, maxOpusPacket)
	n, err := e.encoder.EncodeFloat32(samples, data)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	return data[:n], nil
}

// Codec returns the chunk codec name
func (e *OpusEncoder) Codec() string { return audio.CodecOpus }

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}

// OpusFrameSize returns the 20ms frame size for sampleRate
func OpusFrameSize(sampleRate int) int {
	return sampleRate / 50
}

func validOpusFrame(sampleRate, frameSize int) bool {
	if sampleRate <= 0 || frameSize <= 0 {
		return false
	}
	// 2.5, 5, 10, 20, 40, 60 ms expressed in tenths of a millisecond
	for _, tenths := range []int{25, 50, 100, 200, 400, 600} {
		if sampleRate*tenths/10000 == frameSize && sampleRate*tenths%10000 == 0 {
			return true
		}
	}
	return false
}
