// ABOUTME: Viewer audio playback package
// ABOUTME: Queues broadcast chunks and plays them back to back
// Package playback turns the host's audio chunks back into sound.
//
// Chunks are decoded as they arrive and held in a strict FIFO. A single
// consumer writes one buffer at a time to the Sink, so buffers never
// overlap. The queue starts locked: chunks are buffered but silent until
// Unlock is called from a user action.
package playback
