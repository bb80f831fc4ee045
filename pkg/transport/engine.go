// ABOUTME: Transport engine: the host's master clock and clip scheduler
// ABOUTME: Handles BPM, play/pause/stop/seek, looped clip rendering and playhead ticks
package transport

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/beatpackz/cookmode/pkg/audio/output"
	"github.com/beatpackz/cookmode/pkg/beat"
	"github.com/beatpackz/cookmode/pkg/sched"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	MinBPM     = 10
	MaxBPM     = 250
	DefaultBPM = 120

	// MinLoopBeats is the loop floor: 4 bars of 4/4
	MinLoopBeats = 16

	DefaultSampleRate   = 48000
	DefaultBlockSize    = 2048
	DefaultLoadTimeout  = 10 * time.Second
	DefaultTickInterval = 50 * time.Millisecond
	DefaultStartOffset  = 30 * time.Millisecond

	// seekEpsilon keeps seeks strictly inside the loop
	seekEpsilon = 0.001
)

// State is the transport run state
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Tap receives every rendered master block. Taps run on the render loop
// and must not block.
type Tap func(block []float32, sampleRate int)

// Config holds engine configuration
type Config struct {
	Clock        clock.Clock
	Loader       Loader
	Logger       *zap.SugaredLogger
	SampleRate   int
	BlockSize    int
	BPM          float64
	LoadTimeout  time.Duration
	TickInterval time.Duration
	StartOffset  time.Duration

	// Monitor, when set, plays the master output locally
	Monitor output.Output

	// ResumeAfterBPMChange restarts playback after SetBPM stopped it
	ResumeAfterBPMChange bool
}

// Status is a point-in-time view of the transport
type Status struct {
	State           State
	BPM             float64
	PositionSeconds float64
	PositionBeats   float64
	LoopEndBeats    float64
	Clips           []ClipStatus
}

// ClipStatus reports a loaded clip
type ClipStatus struct {
	Clip
	StartBBS string
	EndBBS   string
}

// Engine is the authoritative transport. Construct with New, call Init
// before Start, and Close when the session ends.
type Engine struct {
	config Config
	clk    clock.Clock
	log    *zap.SugaredLogger

	mu           sync.Mutex
	bpm          float64
	order        []string
	players      map[string]*player
	loopEndBeats float64
	state        State
	base         float64   // position in seconds when not playing, or at startWall
	startWall    time.Time // wall time playback (re)started from base
	cursor       int64     // render position in frames within the loop
	onTick       func(seconds float64)
	taps         map[int]Tap
	nextTap      int
	initialized  bool
	closed       bool
	tickTask     *sched.Task
	renderTask   *sched.Task
	monitorCh    chan []float32
	monitorDone  chan struct{}

	loadMu    sync.Mutex
	closeOnce sync.Once
}

// New creates an engine with defaults filled in
func New(config Config) *Engine {
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.Loader == nil {
		config.Loader = NewSourceLoader(config.Logger)
	}
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultSampleRate
	}
	if config.BlockSize <= 0 {
		config.BlockSize = DefaultBlockSize
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = DefaultLoadTimeout
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.StartOffset < 0 {
		config.StartOffset = 0
	} else if config.StartOffset == 0 {
		config.StartOffset = DefaultStartOffset
	}

	e := &Engine{
		config:       config,
		clk:          config.Clock,
		log:          config.Logger,
		players:      make(map[string]*player),
		loopEndBeats: MinLoopBeats,
		taps:         make(map[int]Tap),
	}
	e.bpm = DefaultBPM
	if config.BPM != 0 {
		e.bpm = e.clampBPM(config.BPM)
	}
	return e
}

// Init starts the render loop and opens the monitor output. A failure wraps
// ErrInitFailed and leaves the engine uninitialized so the caller can retry.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.initialized {
		return nil
	}

	if m := e.config.Monitor; m != nil {
		if err := m.Open(e.config.SampleRate, 1); err != nil {
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
		if err := m.Resume(); err != nil {
			// Release the device so a retry opens it fresh
			if cerr := m.Close(); cerr != nil {
				e.log.Warnf("Failed to close monitor after resume failure: %v", cerr)
			}
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
		e.monitorCh = make(chan []float32, 8)
		e.monitorDone = make(chan struct{})
		go e.monitorLoop(m, e.monitorCh, e.monitorDone)
	}

	blockDur := time.Duration(e.config.BlockSize) * time.Second / time.Duration(e.config.SampleRate)
	e.renderTask = sched.Every(e.clk, blockDur, e.renderTick)
	e.initialized = true

	e.log.Infof("Transport initialized: %dHz, block %d frames (%v), bpm %.1f",
		e.config.SampleRate, e.config.BlockSize, blockDur, e.bpm)
	return nil
}

// SetBPM clamps bpm into [MinBPM, MaxBPM], stops the transport and applies
// the new tempo. It returns the tempo actually applied.
func (e *Engine) SetBPM(bpm float64) float64 {
	e.mu.Lock()

	clamped := e.clampBPM(bpm)
	wasPlaying := e.state == Playing
	e.stopLocked()

	e.bpm = clamped
	e.rescheduleLocked()

	resume := wasPlaying && e.config.ResumeAfterBPMChange
	e.mu.Unlock()

	if resume {
		if err := e.Start(); err != nil {
			e.log.Warnf("Failed to resume after BPM change: %v", err)
		}
	}
	return clamped
}

func (e *Engine) clampBPM(bpm float64) float64 {
	clamped := ClampBPM(bpm)
	if clamped != bpm {
		e.log.Warnf("BPM %.2f out of range [%d, %d], using %.0f", bpm, MinBPM, MaxBPM, clamped)
	}
	return clamped
}

// ClampBPM maps bpm into [MinBPM, MaxBPM]. NaN becomes DefaultBPM.
func ClampBPM(bpm float64) float64 {
	switch {
	case math.IsNaN(bpm):
		return DefaultBPM
	case bpm < MinBPM:
		return MinBPM
	case bpm > MaxBPM:
		return MaxBPM
	}
	return bpm
}

// BPM returns the current tempo
func (e *Engine) BPM() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bpm
}

// SetClips replaces the whole clip set. Previous players are disposed
// first. Each source must load within the load timeout; the first failure
// aborts the call with a *ClipLoadError and leaves the engine with no clips.
func (e *Engine) SetClips(ctx context.Context, clips []Clip) error {
	seen := make(map[string]bool, len(clips))
	for _, c := range clips {
		if err := c.validate(); err != nil {
			return err
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate clip id %s", c.ID)
		}
		seen[c.ID] = true
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.disposeLocked()
	sampleRate := e.config.SampleRate
	e.mu.Unlock()

	loaded := make([][]float32, len(clips))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clips {
		i, c := i, c
		g.Go(func() error {
			data, err := e.loadClip(gctx, c, sampleRate)
			if err != nil {
				return err
			}
			loaded[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Errorf("Clip set load aborted: %v", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	for i, c := range clips {
		p := newPlayer(c, loaded[i])
		if err := p.schedule(e.bpm, sampleRate); err != nil {
			e.disposeLocked()
			return fmt.Errorf("failed to schedule clip %s: %w", c.ID, err)
		}
		e.players[c.ID] = p
		e.order = append(e.order, c.ID)
	}
	e.loopEndBeats = LoopEndBeats(clips)
	e.clampPositionLocked()

	e.log.Infof("Loaded %d clips, loop end %.2f beats", len(clips), e.loopEndBeats)
	return nil
}

// loadClip runs one load under the per-clip timeout. The loader may ignore
// its context, so the wait itself is bounded here.
func (e *Engine) loadClip(ctx context.Context, c Clip, sampleRate int) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.LoadTimeout)
	defer cancel()

	type result struct {
		data []float32
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := e.config.Loader.Load(ctx, c.Source, sampleRate)
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, &ClipLoadError{ClipID: c.ID, Source: c.Source, Err: r.err}
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, &ClipLoadError{ClipID: c.ID, Source: c.Source, Err: ctx.Err()}
	}
}

// RemoveClip disposes a single clip and recomputes the loop end
func (e *Engine) RemoveClip(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClip, id)
	}
	p.dispose()
	delete(e.players, id)

	clips := make([]Clip, 0, len(e.players))
	order := e.order[:0]
	for _, cid := range e.order {
		if cid == id {
			continue
		}
		order = append(order, cid)
		clips = append(clips, e.players[cid].clip)
	}
	e.order = order
	e.loopEndBeats = LoopEndBeats(clips)
	e.clampPositionLocked()
	return nil
}

// UpdateClipGain sets a clip's linear gain
func (e *Engine) UpdateClipGain(id string, gain float64) error {
	if gain < 0 || math.IsNaN(gain) {
		gain = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClip, id)
	}
	p.gain = gain
	return nil
}

// MuteClip mutes or unmutes a clip
func (e *Engine) MuteClip(id string, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClip, id)
	}
	p.muted = muted
	return nil
}

// Start begins playback from the current position after a short offset
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if !e.initialized {
		return ErrNotInitialized
	}
	if e.state == Playing {
		return nil
	}

	e.startWall = e.clk.Now().Add(e.config.StartOffset)
	e.cursor = secondsToFrames(e.base, e.config.SampleRate)
	e.state = Playing
	e.tickTask = sched.Every(e.clk, e.config.TickInterval, e.tick)

	e.log.Debugf("Transport started at %.3fs", e.base)
	return nil
}

// Stop halts playback and resets the position to zero
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.stopTickLocked()
	e.state = Stopped
	e.base = 0
	e.cursor = 0
}

// Pause halts playback and keeps the position for the next Start
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Playing {
		return
	}
	e.base = e.positionLocked(e.clk.Now())
	e.stopTickLocked()
	e.state = Paused
}

// Seek moves the playhead, clamped into [0, loopLength)
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seconds = e.clampSeekLocked(seconds)
	e.base = seconds
	e.cursor = secondsToFrames(seconds, e.config.SampleRate)
	if e.state == Playing {
		e.startWall = e.clk.Now()
	}
}

func (e *Engine) clampSeekLocked(seconds float64) float64 {
	max := e.loopSecondsLocked() - seekEpsilon
	if math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	if seconds > max {
		return max
	}
	return seconds
}

// clampPositionLocked keeps a paused or stopped position inside a loop
// that may have shrunk
func (e *Engine) clampPositionLocked() {
	if e.state == Playing {
		return
	}
	e.base = e.clampSeekLocked(e.base)
}

// OnTick registers the playhead callback, fired every TickInterval while
// playing with the wrapped position in seconds. Passing nil clears it.
func (e *Engine) OnTick(fn func(seconds float64)) {
	e.mu.Lock()
	e.onTick = fn
	e.mu.Unlock()
}

// AddTap registers a master-output tap and returns its removal func
func (e *Engine) AddTap(t Tap) func() {
	e.mu.Lock()
	id := e.nextTap
	e.nextTap++
	e.taps[id] = t
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.taps, id)
		e.mu.Unlock()
	}
}

// Position returns the wrapped playhead position in seconds
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked(e.clk.Now())
}

// LoopEndBeats returns the current loop length in beats
func (e *Engine) LoopEndBeats() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loopEndBeats
}

// State returns the run state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SampleRate returns the render sample rate
func (e *Engine) SampleRate() int {
	return e.config.SampleRate
}

// Snapshot returns the full transport status
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.positionLocked(e.clk.Now())
	s := Status{
		State:           e.state,
		BPM:             e.bpm,
		PositionSeconds: pos,
		PositionBeats:   beat.SecondsToBeats(pos, e.bpm),
		LoopEndBeats:    e.loopEndBeats,
		Clips:           make([]ClipStatus, 0, len(e.order)),
	}
	for _, id := range e.order {
		p := e.players[id]
		c := p.clip
		c.Gain = p.gain
		c.Muted = p.muted
		s.Clips = append(s.Clips, ClipStatus{Clip: c, StartBBS: p.startBBS, EndBBS: p.endBBS})
	}
	return s
}

func (e *Engine) loopSecondsLocked() float64 {
	return beat.BeatsToSeconds(e.loopEndBeats, e.bpm)
}

func (e *Engine) positionLocked(now time.Time) float64 {
	if e.state != Playing {
		return e.base
	}
	elapsed := now.Sub(e.startWall).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return beat.Wrap(e.base+elapsed, 0, e.loopSecondsLocked())
}

func (e *Engine) tick(now time.Time) {
	e.mu.Lock()
	if e.state != Playing || e.onTick == nil {
		e.mu.Unlock()
		return
	}
	pos := e.positionLocked(now)
	fn := e.onTick
	e.mu.Unlock()

	fn(pos)
}

// stopTickLocked cancels the tick task without waiting: an in-flight tick
// blocks on e.mu and then sees the new state.
func (e *Engine) stopTickLocked() {
	e.tickTask.Cancel()
	e.tickTask = nil
}

func (e *Engine) rescheduleLocked() {
	for _, p := range e.players {
		if err := p.schedule(e.bpm, e.config.SampleRate); err != nil {
			e.log.Errorf("Failed to reschedule clip %s: %v", p.clip.ID, err)
		}
	}
	e.clampPositionLocked()
}

func (e *Engine) disposeLocked() {
	for _, p := range e.players {
		p.dispose()
	}
	e.players = make(map[string]*player)
	e.order = nil
	e.loopEndBeats = MinLoopBeats
	e.clampPositionLocked()
}

// Close stops playback, disposes every player and releases the monitor.
// Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.stopLocked()
		e.disposeLocked()
		e.closed = true
		render := e.renderTask
		e.renderTask = nil
		monitorCh := e.monitorCh
		e.monitorCh = nil
		e.taps = make(map[int]Tap)
		e.mu.Unlock()

		render.Stop()
		if monitorCh != nil {
			close(monitorCh)
			<-e.monitorDone
			if err := e.config.Monitor.Close(); err != nil {
				e.log.Warnf("Failed to close monitor output: %v", err)
			}
		}
		e.log.Infof("Transport closed")
	})
	return nil
}
