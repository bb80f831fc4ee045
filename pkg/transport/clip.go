// ABOUTME: Clip definitions, scheduled players and transport errors
// ABOUTME: Converts clip beat ranges into bars:beats:sixteenths schedule addresses
package transport

import (
	"errors"
	"fmt"
	"math"

	"github.com/beatpackz/cookmode/pkg/beat"
)

var (
	// ErrNotInitialized is returned by Start before Init has succeeded
	ErrNotInitialized = errors.New("transport: engine not initialized")
	// ErrInitFailed wraps audio device failures from Init; retry after user interaction
	ErrInitFailed = errors.New("transport: audio engine failed to start")
	// ErrUnknownClip is returned for gain/mute/remove calls on ids not in the clip set
	ErrUnknownClip = errors.New("transport: unknown clip")
	// ErrClosed is returned once the engine has been closed
	ErrClosed = errors.New("transport: engine closed")
)

// ClipLoadError reports the clip whose source failed to load
type ClipLoadError struct {
	ClipID string
	Source string
	Err    error
}

func (e *ClipLoadError) Error() string {
	return fmt.Sprintf("failed to load clip %s (%s): %v", e.ClipID, e.Source, e.Err)
}

func (e *ClipLoadError) Unwrap() error {
	return e.Err
}

// Clip is an audio segment placed on the loop timeline
type Clip struct {
	ID            string  `json:"id" yaml:"id"`
	Source        string  `json:"source" yaml:"source"`
	OffsetBeats   float64 `json:"offsetInBeats" yaml:"offset_beats"`
	DurationBeats float64 `json:"durationInBeats" yaml:"duration_beats"`
	Gain          float64 `json:"gain,omitempty" yaml:"gain"`
	Muted         bool    `json:"muted,omitempty" yaml:"muted"`
}

// EndBeats returns the beat position the clip stops at
func (c Clip) EndBeats() float64 {
	return c.OffsetBeats + c.DurationBeats
}

func (c Clip) validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("clip with source %q has no id", c.Source)
	case c.Source == "":
		return fmt.Errorf("clip %s has no source", c.ID)
	case math.IsNaN(c.OffsetBeats) || math.IsInf(c.OffsetBeats, 0) || c.OffsetBeats < 0:
		return fmt.Errorf("clip %s has invalid offset %v", c.ID, c.OffsetBeats)
	case math.IsNaN(c.DurationBeats) || math.IsInf(c.DurationBeats, 0) || c.DurationBeats <= 0:
		return fmt.Errorf("clip %s has invalid duration %v", c.ID, c.DurationBeats)
	case c.Gain < 0:
		return fmt.Errorf("clip %s has negative gain %v", c.ID, c.Gain)
	}
	return nil
}

// LoopEndBeats returns the loop length for a clip set: the furthest clip
// end, never less than MinLoopBeats.
func LoopEndBeats(clips []Clip) float64 {
	end := float64(MinLoopBeats)
	for _, c := range clips {
		if e := c.EndBeats(); e > end {
			end = e
		}
	}
	return end
}

// player is a loaded clip bound to its decoded source
type player struct {
	clip     Clip
	startBBS string
	endBBS   string
	data     []float32
	gain     float64
	muted    bool

	// derived from the BBS addresses at the current tempo
	startFrame int64
	endFrame   int64
}

func newPlayer(c Clip, data []float32) *player {
	gain := c.Gain
	if gain == 0 {
		gain = 1
	}
	return &player{
		clip:     c,
		startBBS: beat.BeatsToBBS(c.OffsetBeats),
		endBBS:   beat.BeatsToBBS(c.EndBeats()),
		data:     data,
		gain:     gain,
		muted:    c.Muted,
	}
}

// schedule converts the BBS addresses into sample frames
func (p *player) schedule(bpm float64, sampleRate int) error {
	start, err := beat.ParseBBS(p.startBBS)
	if err != nil {
		return err
	}
	end, err := beat.ParseBBS(p.endBBS)
	if err != nil {
		return err
	}
	p.startFrame = secondsToFrames(beat.BeatsToSeconds(start, bpm), sampleRate)
	p.endFrame = secondsToFrames(beat.BeatsToSeconds(end, bpm), sampleRate)
	return nil
}

// sampleAt returns the clip's contribution at an absolute loop frame
func (p *player) sampleAt(frame int64) float32 {
	if p.muted || frame < p.startFrame || frame >= p.endFrame {
		return 0
	}
	idx := frame - p.startFrame
	if idx >= int64(len(p.data)) {
		return 0
	}
	return p.data[idx] * float32(p.gain)
}

func (p *player) dispose() {
	p.data = nil
}

func secondsToFrames(seconds float64, sampleRate int) int64 {
	return int64(math.Round(seconds * float64(sampleRate)))
}
