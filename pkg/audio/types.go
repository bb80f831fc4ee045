// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats, float32 buffers and integer sample helpers
package audio

import "time"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Codec names carried on audio chunks.
const (
	CodecPCM16 = "pcm16"
	CodecWAV   = "wav"
	CodecOpus  = "opus"
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Buffer represents decoded audio as interleaved float32 samples in [-1, 1]
type Buffer struct {
	Timestamp int64 // Sender timestamp (milliseconds)
	Samples   []float32
	Format    Format
}

// Frames returns the number of sample frames in the buffer
func (b *Buffer) Frames() int {
	if b == nil || b.Format.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playback length of the buffer
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// Mono downmixes interleaved samples to a single channel by averaging
func Mono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// IntToFloat32 scales a signed integer sample of the given bit depth into [-1, 1]
func IntToFloat32(sample int, bitDepth int) float32 {
	switch bitDepth {
	case 8:
		// 8-bit WAV is unsigned
		return float32(sample-128) / 128
	case 16:
		return PCM16ToFloat32(int16(sample))
	case 24:
		return float32(sample) / float32(-Min24Bit)
	case 32:
		return float32(float64(sample) / 2147483648.0)
	default:
		return 0
	}
}
