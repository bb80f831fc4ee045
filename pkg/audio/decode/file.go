// ABOUTME: Whole-file decoding for clip sources
// ABOUTME: Supports MP3, FLAC and WAV, dispatching on file extension
package decode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/beatpackz/cookmode/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// File decodes a complete audio file. name is only used for its extension,
// so URLs and paths both work.
func File(r io.Reader, name string) (*audio.Buffer, error) {
	ext := strings.ToLower(path.Ext(stripQuery(name)))

	switch ext {
	case ".mp3":
		return MP3(r)
	case ".flac":
		return FLAC(r)
	case ".wav", ".wave":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read wav: %w", err)
		}
		return audio.ParseWAV(data)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac, .wav)", ext)
	}
}

// MP3 decodes an MP3 stream. go-mp3 always outputs 16-bit stereo.
func MP3(r io.Reader) (*audio.Buffer, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, decoder); err != nil {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	data := raw.Bytes()
	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = audio.PCM16ToFloat32(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}

	return &audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			Codec:      "mp3",
			SampleRate: decoder.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
	}, nil
}

// FLAC decodes a FLAC stream frame by frame
func FLAC(r io.Reader) (*audio.Buffer, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bitDepth := int(stream.Info.BitsPerSample)
	scale := float32(int64(1) << (bitDepth - 1))

	samples := make([]float32, 0, int(stream.Info.NSamples)*channels)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("flac frame error: %w", err)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float32(frame.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	return &audio.Buffer{
		Samples: samples,
		Format: audio.Format{
			Codec:      "flac",
			SampleRate: int(stream.Info.SampleRate),
			Channels:   channels,
			BitDepth:   bitDepth,
		},
	}, nil
}

func stripQuery(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		return name[:i]
	}
	return name
}
