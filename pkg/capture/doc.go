// ABOUTME: Package capture streams host master output to viewers
// ABOUTME: Taps rendered blocks and publishes them as sequenced audio chunks
// Package capture turns the host's rendered master output into audio
// chunks on the session's audio channel.
//
// The pipeline is installed as a transport tap. Tap copies each block and
// hands it to a worker goroutine, so the render loop never waits on
// encoding or the network:
//
//	pipe := capture.New(capture.Config{
//		Publisher: bus,
//		Topic:     audioTopic,
//	})
//	remove := engine.AddTap(pipe.Tap)
//	defer pipe.Close()
//	defer remove()
//
// Each chunk carries a monotonically increasing seq so viewers can count
// gaps.
package capture
