// ABOUTME: Sample rate conversion for clip sources and playback
// ABOUTME: Linear interpolation over interleaved float32 frames
// Package resample converts float32 audio between sample rates.
//
// Clip files decoded at 44.1kHz are brought to the transport rate once at
// load time with Convert. A Resampler keeps its fractional position across
// calls for streaming use.
//
//	samples := resample.Convert(buf.Samples, 44100, 48000, 1)
package resample
