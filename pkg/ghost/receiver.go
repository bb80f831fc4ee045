// ABOUTME: Viewer-side ghost state reconstruction
// ABOUTME: Merges snapshots and dead-reckons the playhead between them
package ghost

import (
	"context"
	"sync"
	"time"

	"github.com/beatpackz/cookmode/pkg/beat"
	"github.com/beatpackz/cookmode/pkg/protocol"
	"github.com/beatpackz/cookmode/pkg/sched"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Receiver defaults
const (
	DefaultStaleAfter    = 2 * time.Second
	DefaultEventTTL      = 5 * time.Second
	DefaultEventCapacity = 10
	DefaultFrameInterval = 16 * time.Millisecond
	DefaultSweepInterval = time.Second
)

// ReceiverConfig holds receiver configuration
type ReceiverConfig struct {
	Clock         clock.Clock
	Logger        *zap.SugaredLogger
	StaleAfter    time.Duration
	EventTTL      time.Duration
	EventCapacity int
	FrameInterval time.Duration
	SweepInterval time.Duration
}

// Receiver mirrors the host's ghost state on a viewer
type Receiver struct {
	config ReceiverConfig
	clk    clock.Clock
	log    *zap.SugaredLogger

	mu         sync.Mutex
	state      protocol.GhostState
	hasState   bool
	connected  bool
	lastUpdate time.Time
	lastFrame  time.Time
	clips      ring[protocol.ClipTrigger]
	pads       ring[protocol.PadPress]
}

// View is a copy of the receiver's state safe to read concurrently
type View struct {
	State        protocol.GhostState
	HasState     bool
	Connected    bool
	Stale        bool
	LastUpdate   time.Time
	ClipTriggers []Event[protocol.ClipTrigger]
	PadPresses   []Event[protocol.PadPress]
}

// NewReceiver creates a disconnected receiver with no state
func NewReceiver(config ReceiverConfig) *Receiver {
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	if config.EventTTL <= 0 {
		config.EventTTL = DefaultEventTTL
	}
	if config.EventCapacity <= 0 {
		config.EventCapacity = DefaultEventCapacity
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}

	return &Receiver{
		config: config,
		clk:    config.Clock,
		log:    config.Logger,
		clips:  newRing[protocol.ClipTrigger](config.EventCapacity),
		pads:   newRing[protocol.PadPress](config.EventCapacity),
	}
}

// HandleMessage routes a decoded ghost message. Audio and unknown kinds
// report false.
func (r *Receiver) HandleMessage(msg protocol.Message) bool {
	switch m := msg.(type) {
	case protocol.GhostState:
		r.HandleState(m)
	case protocol.ClipTrigger:
		r.HandleClipTrigger(m)
	case protocol.PadPress:
		r.HandlePadPress(m)
	default:
		return false
	}
	return true
}

// HandleState merges a snapshot. Required fields always replace local
// values, optional ones only when present. The playhead is wrapped into
// the merged loop region.
func (r *Receiver) HandleState(msg protocol.GhostState) {
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.state
	s.PlayheadPosition = msg.PlayheadPosition
	s.IsPlaying = msg.IsPlaying
	s.BPM = msg.BPM
	s.Timestamp = msg.Timestamp

	if msg.LoopRegion != nil {
		lr := *msg.LoopRegion
		s.LoopRegion = &lr
	}
	if msg.ActiveView != "" {
		s.ActiveView = msg.ActiveView
	}
	if msg.MousePosition != nil {
		p := *msg.MousePosition
		s.MousePosition = &p
	}
	if msg.PianoRoll != nil {
		pr := *msg.PianoRoll
		s.PianoRoll = &pr
	}
	if msg.Timeline != nil {
		tl := *msg.Timeline
		s.Timeline = &tl
	}

	s.PlayheadPosition = s.LoopRegion.Apply(s.PlayheadPosition)
	r.hasState = true
	r.lastUpdate = now
	r.lastFrame = now
}

// HandleClipTrigger records a clip trigger
func (r *Receiver) HandleClipTrigger(msg protocol.ClipTrigger) {
	now := r.clk.Now()
	r.mu.Lock()
	r.clips.push(msg, now)
	r.mu.Unlock()
}

// HandlePadPress records a pad press
func (r *Receiver) HandlePadPress(msg protocol.PadPress) {
	now := r.clk.Now()
	r.mu.Lock()
	r.pads.push(msg, now)
	r.mu.Unlock()
}

// SetConnected records channel status. A disconnect pauses the local
// playhead until the next snapshot.
func (r *Receiver) SetConnected(connected bool) {
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected == connected {
		return
	}
	r.connected = connected
	r.lastFrame = now
	if !connected {
		r.state.IsPlaying = false
		r.log.Infof("Host channel disconnected, pausing ghost playhead")
	}
}

// Step advances the playhead by the time since the previous frame
func (r *Receiver) Step() {
	r.step(r.clk.Now())
}

func (r *Receiver) step(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() { r.lastFrame = now }()

	if !r.connected {
		return
	}

	if now.Sub(r.lastUpdate) > r.config.StaleAfter {
		if r.state.IsPlaying {
			r.log.Warnf("No host update for %s, auto-pausing", now.Sub(r.lastUpdate).Round(time.Millisecond))
		}
		r.state.IsPlaying = false
		return
	}

	if !r.state.IsPlaying {
		return
	}

	dt := now.Sub(r.lastFrame).Seconds()
	if dt <= 0 {
		return
	}
	pos := r.state.PlayheadPosition + dt*(r.state.BPM/60)
	r.state.PlayheadPosition = r.state.LoopRegion.Apply(pos)
}

// Sweep drops events older than the event TTL
func (r *Receiver) Sweep() {
	r.sweep(r.clk.Now())
}

func (r *Receiver) sweep(now time.Time) {
	cutoff := now.Add(-r.config.EventTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.clips.sweep(cutoff)
	r.pads.sweep(cutoff)
}

// Run drives Step and Sweep until ctx is cancelled
func (r *Receiver) Run(ctx context.Context) {
	frames := sched.Every(r.clk, r.config.FrameInterval, r.step)
	sweeps := sched.Every(r.clk, r.config.SweepInterval, r.sweep)

	<-ctx.Done()

	frames.Stop()
	sweeps.Stop()
}

// Snapshot returns a copy of the current state
func (r *Receiver) Snapshot() View {
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{
		State:        r.state,
		HasState:     r.hasState,
		Connected:    r.connected,
		Stale:        r.connected && now.Sub(r.lastUpdate) > r.config.StaleAfter,
		LastUpdate:   r.lastUpdate,
		ClipTriggers: r.clips.snapshot(),
		PadPresses:   r.pads.snapshot(),
	}
	if s := r.state.LoopRegion; s != nil {
		lr := *s
		v.State.LoopRegion = &lr
	}
	if p := r.state.MousePosition; p != nil {
		mp := *p
		v.State.MousePosition = &mp
	}
	if p := r.state.PianoRoll; p != nil {
		pr := *p
		v.State.PianoRoll = &pr
	}
	if t := r.state.Timeline; t != nil {
		tl := *t
		v.State.Timeline = &tl
	}
	return v
}

// Position returns the current playhead in beats
func (r *Receiver) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.PlayheadPosition
}

// BBS returns the current playhead as bars:beats:sixteenths
func (r *Receiver) BBS() string {
	return beat.BeatsToBBS(r.Position())
}
