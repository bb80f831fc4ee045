// ABOUTME: Musical coordinate conversions for the transport
// ABOUTME: Beats, seconds, bars:beats:sixteenths notation and loop wrapping
package beat

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// BeatsPerBar is fixed at 4/4.
	BeatsPerBar = 4
	// SixteenthsPerBeat in 4/4.
	SixteenthsPerBeat = 4
)

// BeatsToSeconds converts a beat position to seconds at the given tempo.
func BeatsToSeconds(beats, bpm float64) float64 {
	if bpm <= 0 {
		return 0
	}
	return beats * 60 / bpm
}

// SecondsToBeats converts seconds to a beat position at the given tempo.
func SecondsToBeats(seconds, bpm float64) float64 {
	return seconds * bpm / 60
}

// BeatsToBBS renders a beat position in "bars:beats:sixteenths" transport
// notation. Bars and beats are zero-based; sixteenths keep any fraction.
func BeatsToBBS(beats float64) string {
	if beats < 0 {
		beats = 0
	}
	bars := math.Floor(beats / BeatsPerBar)
	rem := beats - bars*BeatsPerBar
	whole := math.Floor(rem)
	sixteenths := (rem - whole) * SixteenthsPerBeat

	return fmt.Sprintf("%d:%d:%s", int(bars), int(whole),
		strconv.FormatFloat(roundTo(sixteenths, 6), 'f', -1, 64))
}

// ParseBBS parses "bars:beats:sixteenths" notation back into beats.
func ParseBBS(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid transport time %q: want bars:beats:sixteenths", s)
	}

	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid transport time %q: %w", s, err)
		}
		if v < 0 {
			return 0, fmt.Errorf("invalid transport time %q: negative field", s)
		}
		vals[i] = v
	}

	return vals[0]*BeatsPerBar + vals[1] + vals[2]/SixteenthsPerBeat, nil
}

// Wrap maps pos into [start, end). Positions already inside are returned
// unchanged; positions on either side are folded in by modulo. An empty or
// inverted region leaves pos alone.
func Wrap(pos, start, end float64) float64 {
	length := end - start
	if length <= 0 {
		return pos
	}
	if pos >= start && pos < end {
		return pos
	}

	offset := math.Mod(pos-start, length)
	if offset < 0 {
		offset += length
	}
	// Mod can round up to length for tiny negative offsets.
	if offset >= length {
		offset = 0
	}
	return start + offset
}

// LoopRegion is the [Start, End) beat range playback wraps within.
type LoopRegion struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Enabled bool    `json:"enabled"`
}

// Apply wraps pos into the region when looping is enabled.
func (r *LoopRegion) Apply(pos float64) float64 {
	if r == nil || !r.Enabled {
		return pos
	}
	return Wrap(pos, r.Start, r.End)
}

// Validate rejects non-finite bounds, and an enabled region with no length.
// A disabled region never wraps so any finite bounds are accepted.
func (r LoopRegion) Validate() error {
	if math.IsNaN(r.Start) || math.IsInf(r.Start, 0) || math.IsNaN(r.End) || math.IsInf(r.End, 0) {
		return fmt.Errorf("loop region bounds must be finite")
	}
	if r.Enabled && r.End <= r.Start {
		return fmt.Errorf("loop region end must be after start, got [%v, %v)", r.Start, r.End)
	}
	return nil
}

// Length returns the region length in beats.
func (r LoopRegion) Length() float64 {
	return r.End - r.Start
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
