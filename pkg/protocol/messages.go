// ABOUTME: Cook Mode wire message type definitions
// ABOUTME: Tagged union of state, event and audio messages with per-kind validation
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/beatpackz/cookmode/pkg/audio"
	"github.com/beatpackz/cookmode/pkg/beat"
)

// Message kinds
const (
	KindState       = "state"
	KindClipTrigger = "clip-trigger"
	KindPadPress    = "pad-press"
	KindAudio       = "audio"
)

// ErrInvalidMessage wraps every decode and validation failure
var ErrInvalidMessage = errors.New("invalid message")

// Message is implemented by every payload kind
type Message interface {
	Kind() string
	Validate() error
}

// Envelope is the top-level wrapper for all messages on the wire
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// GhostState is the host's transport and UI snapshot
type GhostState struct {
	PlayheadPosition float64          `json:"playheadPosition"`
	IsPlaying        bool             `json:"isPlaying"`
	BPM              float64          `json:"bpm"`
	Timestamp        int64            `json:"timestamp"`
	LoopRegion       *beat.LoopRegion `json:"loopRegion,omitempty"`
	ActiveView       string           `json:"activeView,omitempty"`
	MousePosition    *Point           `json:"mousePosition,omitempty"`
	PianoRoll        *PianoRoll       `json:"pianoRoll,omitempty"`
	Timeline         *Timeline        `json:"timeline,omitempty"`
}

// Point is a cursor position in host UI coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PianoRoll describes the clip open in the host's piano roll
type PianoRoll struct {
	TrackID string `json:"trackId"`
	ClipID  string `json:"clipId"`
	Open    bool   `json:"open"`
}

// Timeline is the host's arrangement viewport
type Timeline struct {
	Zoom   float64 `json:"zoom"`
	Scroll float64 `json:"scroll"`
}

// ClipTrigger announces a clip launch on the host
type ClipTrigger struct {
	TrackID string `json:"trackId"`
	ClipID  string `json:"clipId"`
	Time    int64  `json:"time"`
}

// PadPress announces a drum pad hit on the host
type PadPress struct {
	PadID    string  `json:"padId"`
	Velocity float64 `json:"velocity"`
	Time     int64   `json:"time"`
}

// AudioChunk carries one block of host master output
type AudioChunk struct {
	Audio      string `json:"audio"`
	Timestamp  int64  `json:"timestamp"`
	SampleRate int    `json:"sampleRate"`
	Codec      string `json:"codec,omitempty"`
	Seq        uint64 `json:"seq,omitempty"`
}

func (GhostState) Kind() string  { return KindState }
func (ClipTrigger) Kind() string { return KindClipTrigger }
func (PadPress) Kind() string    { return KindPadPress }
func (AudioChunk) Kind() string  { return KindAudio }

// Validate checks the state snapshot
func (s GhostState) Validate() error {
	if !finite(s.PlayheadPosition) {
		return fmt.Errorf("playheadPosition must be finite")
	}
	if !finite(s.BPM) || s.BPM <= 0 {
		return fmt.Errorf("bpm must be positive, got %v", s.BPM)
	}
	if s.Timestamp < 0 {
		return fmt.Errorf("timestamp must not be negative")
	}
	if r := s.LoopRegion; r != nil {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("loopRegion: %w", err)
		}
	}
	if t := s.Timeline; t != nil && (!finite(t.Zoom) || t.Zoom <= 0 || !finite(t.Scroll)) {
		return fmt.Errorf("timeline zoom must be positive")
	}
	if p := s.MousePosition; p != nil && (!finite(p.X) || !finite(p.Y)) {
		return fmt.Errorf("mousePosition must be finite")
	}
	return nil
}

// Validate checks the clip trigger
func (c ClipTrigger) Validate() error {
	if c.TrackID == "" || c.ClipID == "" {
		return fmt.Errorf("clip trigger needs trackId and clipId")
	}
	return nil
}

// Validate checks the pad press
func (p PadPress) Validate() error {
	if p.PadID == "" {
		return fmt.Errorf("pad press needs padId")
	}
	if !finite(p.Velocity) || p.Velocity < 0 || p.Velocity > 127 {
		return fmt.Errorf("velocity must be in [0, 127], got %v", p.Velocity)
	}
	return nil
}

// Validate checks the audio chunk header. Payload decoding happens at
// playback time so one bad chunk is skipped there.
func (a AudioChunk) Validate() error {
	if a.Audio == "" {
		return fmt.Errorf("audio chunk is empty")
	}
	if a.SampleRate <= 0 || a.SampleRate > 384000 {
		return fmt.Errorf("invalid sampleRate %d", a.SampleRate)
	}
	switch a.Codec {
	case "", audio.CodecPCM16, audio.CodecWAV, audio.CodecOpus:
	default:
		return fmt.Errorf("unsupported codec %q", a.Codec)
	}
	return nil
}

// Encode validates msg and wraps it in an envelope
func Encode(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, msg.Kind(), err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.Kind(), err)
	}

	return json.Marshal(Envelope{Type: msg.Kind(), Payload: payload})
}

// Decode parses an envelope into its typed message and validates it.
// Unknown kinds, malformed JSON and missing required fields are rejected.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		return nil, fmt.Errorf("%w: %s: missing payload", ErrInvalidMessage, env.Type)
	}

	var (
		msg      Message
		err      error
		required []string
	)
	switch env.Type {
	case KindState:
		var m GhostState
		err = json.Unmarshal(env.Payload, &m)
		msg = m
		required = []string{"playheadPosition", "isPlaying", "bpm", "timestamp"}
	case KindClipTrigger:
		var m ClipTrigger
		err = json.Unmarshal(env.Payload, &m)
		msg = m
		required = []string{"trackId", "clipId", "time"}
	case KindPadPress:
		var m PadPress
		err = json.Unmarshal(env.Payload, &m)
		msg = m
		required = []string{"padId", "velocity", "time"}
	case KindAudio:
		var m AudioChunk
		err = json.Unmarshal(env.Payload, &m)
		msg = m
		required = []string{"audio", "timestamp", "sampleRate"}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, env.Type, err)
	}

	if err := requireFields(env.Payload, required); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, env.Type, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, env.Type, err)
	}
	return msg, nil
}

func requireFields(payload json.RawMessage, fields []string) error {
	var present map[string]json.RawMessage
	if err := json.Unmarshal(payload, &present); err != nil {
		return err
	}
	for _, f := range fields {
		v, ok := present[f]
		if !ok || bytes.Equal(v, []byte("null")) {
			return fmt.Errorf("missing required field %s", f)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
