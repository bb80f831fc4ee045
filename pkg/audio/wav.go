// ABOUTME: WAV container framing for raw PCM16 payloads
// ABOUTME: Builds byte-exact 44-byte RIFF headers and parses WAV data via go-audio
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-audio/wav"
)

// WAVHeaderSize is the size of a canonical PCM WAV header
const WAVHeaderSize = 44

// WAVHeader builds the canonical RIFF/WAVE header for a 16-bit PCM payload
// of dataLen bytes.
func WAVHeader(dataLen, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	h := make([]byte, WAVHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}

// FrameWAV prefixes raw PCM16 little-endian bytes with a WAV header
func FrameWAV(pcm []byte, sampleRate, channels int) []byte {
	out := make([]byte, 0, WAVHeaderSize+len(pcm))
	out = append(out, WAVHeader(len(pcm), sampleRate, channels)...)
	return append(out, pcm...)
}

// ParseWAV decodes a complete WAV file held in memory
func ParseWAV(data []byte) (*Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("invalid wav data")
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav pcm: %w", err)
	}

	bitDepth := int(d.BitDepth)
	samples := make([]float32, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = IntToFloat32(v, bitDepth)
	}

	return &Buffer{
		Samples: samples,
		Format: Format{
			Codec:      CodecWAV,
			SampleRate: int(d.SampleRate),
			Channels:   int(d.NumChans),
			BitDepth:   bitDepth,
		},
	}, nil
}
