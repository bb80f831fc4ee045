// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and the PCM16 wire conversions
// Package audio provides the audio types and pure conversions shared by the
// host capture pipeline and the viewer playback queue.
//
// Samples are float32 in [-1, 1] everywhere inside the module. On the wire
// they travel as PCM16 little-endian mono, base64 encoded:
//
//	pcm := audio.EncodePCM16(block)
//	payload := audio.EncodeBase64(pcm)
//
// Decoders that only accept complete containers can be fed a framed copy:
//
//	wav := audio.FrameWAV(pcm, 48000, 1)
package audio
