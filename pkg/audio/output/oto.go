// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams float32 PCM through a persistent oto player with software volume
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/beatpackz/cookmode/pkg/audio/resample"
	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Oto output implementation using oto library
type Oto struct {
	log        *zap.SugaredLogger
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	volume     int
	muted      bool
	resumed    bool
	ready      bool
}

// NewOto creates a new Oto output
func NewOto(logger *zap.SugaredLogger) *Oto {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Oto{
		log:    logger,
		volume: 100,
	}
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	// oto only allows one context per process; keep the first format and
	// resample into it on Write
	if o.otoCtx != nil {
		if o.sampleRate != sampleRate || o.channels != channels {
			o.log.Warnf("Format change detected (%dHz %dch -> %dHz %dch) but oto doesn't support reinitialization, keeping existing context",
				o.sampleRate, o.channels, sampleRate, channels)
		}
		if !o.ready {
			// Reopened after Close
			o.startStreamLocked()
		}
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels
	o.startStreamLocked()

	o.log.Infof("Audio output initialized: %dHz, %d channels (suspended=%v)", sampleRate, channels, !o.resumed)

	return nil
}

// startStreamLocked wires a fresh pipe and persistent player to the context
func (o *Oto) startStreamLocked() {
	if o.resumed {
		if err := o.otoCtx.Resume(); err != nil {
			o.log.Warnf("Failed to resume audio context: %v", err)
		}
	} else if err := o.otoCtx.Suspend(); err != nil {
		o.log.Warnf("Failed to suspend audio context: %v", err)
	}

	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()
	o.ready = true
}

// Write outputs audio samples (blocks until written)
func (o *Oto) Write(samples []float32, sampleRate int) error {
	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		return fmt.Errorf("output not initialized")
	}
	w := o.pipeWriter
	target := o.sampleRate
	channels := o.channels
	gain := volumeMultiplier(o.volume, o.muted)
	o.mu.Unlock()

	if sampleRate != target {
		samples = resample.Convert(samples, sampleRate, target, channels)
	}

	// Write to pipe (which feeds the persistent player)
	if _, err := w.Write(float32Bytes(samples, gain)); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}

	return nil
}

// Resume starts sound output
func (o *Oto) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.resumed = true
	if o.otoCtx == nil {
		// Applied when the context is created
		return nil
	}
	if err := o.otoCtx.Resume(); err != nil {
		return fmt.Errorf("failed to resume audio context: %w", err)
	}
	return nil
}

// Suspend pauses sound output
func (o *Oto) Suspend() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.resumed = false
	if o.otoCtx == nil {
		return nil
	}
	if err := o.otoCtx.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend audio context: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil && o.ready {
		o.otoCtx.Suspend()
	}
	o.ready = false
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()
	o.log.Debugf("Volume set to %d", volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	o.log.Debugf("Muted: %v", muted)
}

// Volume returns current volume
func (o *Oto) Volume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// IsMuted returns mute state
func (o *Oto) IsMuted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// float32Bytes applies gain and packs samples as float32 little-endian
func float32Bytes(samples []float32, gain float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		v := s * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// volumeMultiplier calculates volume multiplier
func volumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0
	}
	return float32(volume) / 100
}
