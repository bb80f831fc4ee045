// ABOUTME: Host side of a Cook Mode session
// ABOUTME: Owns the transport, capture pipeline and ghost broadcaster behind one lifecycle
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beatpackz/cookmode/pkg/audio/encode"
	"github.com/beatpackz/cookmode/pkg/beat"
	"github.com/beatpackz/cookmode/pkg/capture"
	"github.com/beatpackz/cookmode/pkg/ghost"
	"github.com/beatpackz/cookmode/pkg/protocol"
	"github.com/beatpackz/cookmode/pkg/pubsub"
	"github.com/beatpackz/cookmode/pkg/sched"
	"github.com/beatpackz/cookmode/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultHeartbeat is how often state is re-sent while the transport is idle
const DefaultHeartbeat = time.Second

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("session closed")

// HostConfig holds host session configuration
type HostConfig struct {
	// SessionID names the session; a random uuid when empty
	SessionID string
	// RelayHost selects the dev or prod channel namespace
	RelayHost string
	Bus       pubsub.Bus

	Transport transport.Config
	Encoder   encode.Encoder
	Throttle  time.Duration
	Heartbeat time.Duration

	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// Host runs one session from the producing side
type Host struct {
	config HostConfig
	clk    clock.Clock
	log    *zap.SugaredLogger

	sessionID  string
	ghostTopic string
	audioTopic string

	engine      *transport.Engine
	broadcaster *ghost.Broadcaster

	mu       sync.Mutex
	opened   bool
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	pipeline *capture.Pipeline
	releases []func() error
	flush    *clock.Timer
	overlay  protocol.GhostState
	loop     *beat.LoopRegion

	closeOnce sync.Once
	closeErr  error
}

// NewHost creates a host session. Nothing runs until Open.
func NewHost(config HostConfig) (*Host, error) {
	if config.Bus == nil {
		return nil, fmt.Errorf("host session needs a bus")
	}
	if config.SessionID == "" {
		config.SessionID = uuid.NewString()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.Heartbeat <= 0 {
		config.Heartbeat = DefaultHeartbeat
	}
	if config.Throttle <= 0 {
		config.Throttle = ghost.DefaultThrottle
	}

	tc := config.Transport
	tc.Clock = config.Clock
	if tc.Logger == nil {
		tc.Logger = config.Logger.Named("transport")
	}

	ghostTopic, audioTopic := protocol.SessionChannels(config.RelayHost, config.SessionID)

	h := &Host{
		config:     config,
		clk:        config.Clock,
		log:        config.Logger,
		sessionID:  config.SessionID,
		ghostTopic: ghostTopic,
		audioTopic: audioTopic,
		engine:     transport.New(tc),
	}
	h.broadcaster = ghost.NewBroadcaster(ghost.BroadcasterConfig{
		Publisher: config.Bus,
		Topic:     ghostTopic,
		Clock:     config.Clock,
		Throttle:  config.Throttle,
		Logger:    config.Logger.Named("ghost"),
	})
	return h, nil
}

// Open starts the engine, installs the capture tap and begins
// broadcasting. On failure everything acquired so far is released.
func (h *Host) Open(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.opened {
		return nil
	}

	if err := h.engine.Init(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	h.releases = append(h.releases, h.engine.Close)

	h.ctx, h.cancel = context.WithCancel(context.WithoutCancel(ctx))
	h.releases = append(h.releases, func() error {
		h.cancel()
		return nil
	})

	h.pipeline = capture.New(capture.Config{
		Publisher: h.config.Bus,
		Topic:     h.audioTopic,
		Encoder:   h.config.Encoder,
		Clock:     h.clk,
		Logger:    h.log.Named("capture"),
	})
	h.releases = append(h.releases, h.pipeline.Close)

	removeTap := h.engine.AddTap(h.pipeline.Tap)
	h.releases = append(h.releases, func() error {
		removeTap()
		return nil
	})

	h.engine.OnTick(func(float64) { h.publishState(false) })
	h.releases = append(h.releases, func() error {
		h.engine.OnTick(nil)
		return nil
	})

	heartbeat := sched.Every(h.clk, h.config.Heartbeat, func(time.Time) {
		if h.engine.State() != transport.Playing {
			h.publishState(false)
		}
	})
	h.releases = append(h.releases, func() error {
		heartbeat.Stop()
		return nil
	})

	h.opened = true
	h.log.Infof("Host session %s open on %s", h.sessionID, h.ghostTopic)
	return nil
}

// Close releases everything Open acquired in reverse order. Safe to call
// more than once.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		releases := h.releases
		h.releases = nil
		if h.flush != nil {
			h.flush.Stop()
			h.flush = nil
		}
		h.mu.Unlock()

		var errs []error
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](); err != nil {
				errs = append(errs, err)
			}
		}
		// Open never ran
		if len(releases) == 0 {
			errs = append(errs, h.engine.Close())
		}
		h.closeErr = errors.Join(errs...)
		h.log.Infof("Host session %s closed", h.sessionID)
	})
	return h.closeErr
}

// SessionID returns the session identifier viewers join with
func (h *Host) SessionID() string { return h.sessionID }

// Topics returns the ghost and audio topic names
func (h *Host) Topics() (ghostTopic, audioTopic string) {
	return h.ghostTopic, h.audioTopic
}

// Engine exposes the transport for inspection
func (h *Host) Engine() *transport.Engine { return h.engine }

// Start begins playback and announces it
func (h *Host) Start() error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.engine.Start(); err != nil {
		return err
	}
	h.publishState(true)
	return nil
}

// Stop halts playback and announces it
func (h *Host) Stop() error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	h.engine.Stop()
	h.publishState(true)
	return nil
}

// Pause halts playback in place and announces it
func (h *Host) Pause() error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	h.engine.Pause()
	h.publishState(true)
	return nil
}

// Seek moves the playhead and announces it
func (h *Host) Seek(seconds float64) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	h.engine.Seek(seconds)
	h.publishState(true)
	return nil
}

// SetBPM changes the tempo and returns the value applied
func (h *Host) SetBPM(bpm float64) (float64, error) {
	if err := h.checkOpen(); err != nil {
		return 0, err
	}
	applied := h.engine.SetBPM(bpm)
	h.publishState(true)
	return applied, nil
}

// SetClips replaces the clip set
func (h *Host) SetClips(ctx context.Context, clips []transport.Clip) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	err := h.engine.SetClips(ctx, clips)
	h.publishState(true)
	return err
}

// SetLoopRegion overrides the broadcast loop region. nil reverts to the
// transport loop. An enabled region must have End after Start.
func (h *Host) SetLoopRegion(region *beat.LoopRegion) error {
	if region != nil {
		if err := region.Validate(); err != nil {
			return fmt.Errorf("invalid loop region: %w", err)
		}
		r := *region
		region = &r
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.loop = region
	h.mu.Unlock()
	h.publishState(true)
	return nil
}

// SetActiveView records which host view is on screen
func (h *Host) SetActiveView(view string) {
	h.mu.Lock()
	h.overlay.ActiveView = view
	h.mu.Unlock()
	h.publishState(true)
}

// SetMousePosition records the host cursor
func (h *Host) SetMousePosition(x, y float64) {
	h.mu.Lock()
	h.overlay.MousePosition = &protocol.Point{X: x, Y: y}
	h.mu.Unlock()
	h.publishState(true)
}

// SetPianoRoll records the clip open in the piano roll
func (h *Host) SetPianoRoll(pr protocol.PianoRoll) {
	h.mu.Lock()
	h.overlay.PianoRoll = &pr
	h.mu.Unlock()
	h.publishState(true)
}

// SetTimeline records the arrangement viewport
func (h *Host) SetTimeline(tl protocol.Timeline) {
	h.mu.Lock()
	h.overlay.Timeline = &tl
	h.mu.Unlock()
	h.publishState(true)
}

// TriggerClip announces a clip launch
func (h *Host) TriggerClip(trackID, clipID string) error {
	ctx, err := h.liveContext()
	if err != nil {
		return err
	}
	return h.broadcaster.BroadcastClipTrigger(ctx, trackID, clipID)
}

// PressPad announces a pad hit
func (h *Host) PressPad(padID string, velocity float64) error {
	ctx, err := h.liveContext()
	if err != nil {
		return err
	}
	return h.broadcaster.BroadcastPadPress(ctx, padID, velocity)
}

// Stats reports broadcaster and capture counters
func (h *Host) Stats() HostStats {
	h.mu.Lock()
	pipeline := h.pipeline
	h.mu.Unlock()

	st := HostStats{
		Transport: h.engine.Snapshot(),
		Ghost:     h.broadcaster.Stats(),
	}
	if pipeline != nil {
		st.Audio = pipeline.Stats()
		st.Level = pipeline.Level()
	}
	return st
}

// HostStats is a point-in-time view of a host session
type HostStats struct {
	Transport transport.Status
	Ghost     ghost.BroadcasterStats
	Audio     capture.Stats
	Level     int
}

// checkOpen only rejects a closed session. Transport calls before Open
// are allowed and surface the engine's own errors.
func (h *Host) checkOpen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return nil
}

func (h *Host) liveContext() (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if !h.opened {
		return nil, transport.ErrNotInitialized
	}
	return h.ctx, nil
}

// State builds the ghost snapshot from the transport and the UI overlay
func (h *Host) State() protocol.GhostState {
	st := h.engine.Snapshot()

	h.mu.Lock()
	gs := h.overlay
	loop := h.loop
	h.mu.Unlock()

	gs.PlayheadPosition = st.PositionBeats
	gs.IsPlaying = st.State == transport.Playing
	gs.BPM = st.BPM
	if loop != nil {
		lr := *loop
		gs.LoopRegion = &lr
	} else {
		gs.LoopRegion = &beat.LoopRegion{Start: 0, End: st.LoopEndBeats, Enabled: true}
	}
	return gs
}

// publishState sends the current snapshot. With trailing set, a send
// swallowed by the throttle is retried once the window has passed so the
// last change always reaches viewers.
func (h *Host) publishState(trailing bool) {
	ctx, err := h.liveContext()
	if err != nil {
		return
	}

	sent, err := h.broadcaster.BroadcastState(ctx, h.State())
	if err != nil {
		h.log.Debugf("State broadcast failed: %v", err)
		return
	}
	if sent || !trailing {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.flush != nil || h.closed {
		return
	}
	h.flush = h.clk.AfterFunc(h.config.Throttle, func() {
		h.mu.Lock()
		h.flush = nil
		h.mu.Unlock()
		h.publishState(true)
	})
}
