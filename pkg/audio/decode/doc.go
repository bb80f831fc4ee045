// ABOUTME: Audio decoder package for clip files and broadcast chunks
// ABOUTME: Provides Decoder interface and implementations for PCM16, WAV, Opus, FLAC, MP3
// Package decode provides audio decoders.
//
// Chunk decoders (PCM16, WAV, Opus) implement the Decoder interface and
// turn one broadcast payload into mono float32 samples:
//
//	decoder, err := decode.New(audio.Format{Codec: audio.CodecPCM16})
//	samples, err := decoder.Decode(payload)
//
// File decodes whole clip sources (MP3, FLAC, WAV) into interleaved
// float32 buffers at their native rate.
package decode
