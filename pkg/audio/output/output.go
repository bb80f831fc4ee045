// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends
package output

// Output represents an audio output device
type Output interface {
	// Open initializes the output device. Devices open suspended and
	// produce no sound until Resume is called.
	Open(sampleRate, channels int) error

	// Write outputs interleaved float32 samples recorded at sampleRate
	// (blocks until the device has accepted them)
	Write(samples []float32, sampleRate int) error

	// Resume starts or restarts sound output
	Resume() error

	// Suspend pauses sound output without releasing the device
	Suspend() error

	// Close releases output resources
	Close() error
}
