// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface and an oto implementation
// Package output provides audio playback devices.
//
// Devices open in a suspended state, mirroring platforms that refuse to
// make sound before a user gesture. Callers Resume once the user has
// enabled audio.
//
// Example:
//
//	out := output.NewOto()
//	err := out.Open(48000, 1)
//	err = out.Resume()
//	err = out.Write(samples, 48000)
package output
