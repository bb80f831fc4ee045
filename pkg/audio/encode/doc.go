// ABOUTME: Audio encoder package for broadcast chunk payloads
// ABOUTME: Provides Encoder interface and implementations for PCM16, WAV, Opus
// Package encode turns mono float32 blocks into chunk payloads.
//
// PCM16 is the default wire format. WAV adds a 44-byte header per chunk for
// receivers whose decoders need a container. Opus trades CPU for bandwidth
// and requires fixed frame sizes.
//
// Example:
//
//	encoder, err := encode.New(audio.Format{Codec: audio.CodecPCM16}, 0)
//	data, err := encoder.Encode(block)
package encode
