// ABOUTME: PCM16 and float32 sample conversion for the audio wire format
// ABOUTME: Little-endian packing, base64 transport encoding and level metering
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	pcmNegScale = 0x8000
	pcmPosScale = 0x7FFF
)

// Float32ToPCM16 clamps a sample to [-1, 1] and scales it with the asymmetric
// 0x8000 / 0x7FFF range so both -1 and 1 hit the int16 extremes.
func Float32ToPCM16(sample float32) int16 {
	s := float64(sample)
	if math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}

	if s < 0 {
		return int16(s * pcmNegScale)
	}
	return int16(s * pcmPosScale)
}

// PCM16ToFloat32 is the inverse of Float32ToPCM16
func PCM16ToFloat32(sample int16) float32 {
	if sample < 0 {
		return float32(sample) / pcmNegScale
	}
	return float32(sample) / pcmPosScale
}

// EncodePCM16 converts float32 samples to PCM16 little-endian bytes
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Float32ToPCM16(s)))
	}
	return out
}

// DecodePCM16 converts PCM16 little-endian bytes to float32 samples
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("odd PCM16 payload length: %d", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = PCM16ToFloat32(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples, nil
}

// EncodeBase64 encodes bytes for JSON transport
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a transport string back into bytes
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	return data, nil
}

// Level returns the mean absolute amplitude of samples scaled to 0-100
func Level(samples []float32) int {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}

	level := int(math.Round(sum / float64(len(samples)) * 100))
	if level > 100 {
		level = 100
	}
	return level
}
