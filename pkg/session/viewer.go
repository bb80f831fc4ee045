// ABOUTME: Viewer side of a Cook Mode session
// ABOUTME: Subscribes to ghost and audio channels and feeds the receiver and playback queue
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	clocksync "github.com/beatpackz/cookmode/internal/sync"
	"github.com/beatpackz/cookmode/pkg/ghost"
	"github.com/beatpackz/cookmode/pkg/playback"
	"github.com/beatpackz/cookmode/pkg/protocol"
	"github.com/beatpackz/cookmode/pkg/pubsub"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// ViewerConfig holds viewer session configuration
type ViewerConfig struct {
	SessionID string
	RelayHost string
	Bus       pubsub.Bus

	// Sink plays the host audio. Without one, audio chunks only feed the
	// latency estimate.
	Sink      playback.Sink
	MaxQueued int

	Receiver ghost.ReceiverConfig

	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// ViewerStatus is a point-in-time view of a viewer session
type ViewerStatus struct {
	SessionID string
	Ghost     ghost.View
	Playback  playback.Stats
	Clock     clocksync.Stats
	Malformed uint64
	AudioOn   bool
}

// Viewer follows one host session
type Viewer struct {
	config ViewerConfig
	clk    clock.Clock
	log    *zap.SugaredLogger

	ghostTopic string
	audioTopic string

	receiver  *ghost.Receiver
	queue     *playback.Queue
	estimator *clocksync.Estimator

	mu       sync.Mutex
	opened   bool
	closed   bool
	closing  atomic.Bool
	cancel   context.CancelFunc
	subs     []*pubsub.Subscription
	wg       sync.WaitGroup
	updates  chan struct{}
	closeErr error

	malformed atomic.Uint64
	closeOnce sync.Once
}

// NewViewer creates a viewer session. Nothing is subscribed until Open.
func NewViewer(config ViewerConfig) (*Viewer, error) {
	if config.Bus == nil {
		return nil, fmt.Errorf("viewer session needs a bus")
	}
	if config.SessionID == "" {
		return nil, fmt.Errorf("viewer session needs a session id")
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}

	rc := config.Receiver
	rc.Clock = config.Clock
	if rc.Logger == nil {
		rc.Logger = config.Logger.Named("ghost")
	}

	ghostTopic, audioTopic := protocol.SessionChannels(config.RelayHost, config.SessionID)

	v := &Viewer{
		config:     config,
		clk:        config.Clock,
		log:        config.Logger,
		ghostTopic: ghostTopic,
		audioTopic: audioTopic,
		receiver:   ghost.NewReceiver(rc),
		estimator:  clocksync.NewEstimator(config.Clock, config.Logger.Named("clock")),
		updates:    make(chan struct{}, 1),
	}
	if config.Sink != nil {
		v.queue = playback.New(playback.Config{
			Sink:      config.Sink,
			MaxQueued: config.MaxQueued,
			Logger:    config.Logger.Named("playback"),
		})
	}
	return v, nil
}

// Open subscribes to both channels and starts dispatch and the frame loop
func (v *Viewer) Open(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	if v.opened {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	ghostSub, err := v.config.Bus.Subscribe(runCtx, v.ghostTopic)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", v.ghostTopic, err)
	}
	audioSub, err := v.config.Bus.Subscribe(runCtx, v.audioTopic)
	if err != nil {
		ghostSub.Close()
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", v.audioTopic, err)
	}

	v.cancel = cancel
	v.subs = []*pubsub.Subscription{ghostSub, audioSub}
	v.receiver.SetConnected(true)

	v.wg.Add(3)
	go v.dispatch(ghostSub, v.handleGhost)
	go v.dispatch(audioSub, v.handleAudio)
	go func() {
		defer v.wg.Done()
		v.receiver.Run(runCtx)
	}()

	v.opened = true
	v.log.Infof("Viewer joined session %s", v.config.SessionID)
	return nil
}

// Close unsubscribes, stops the frame loop and releases playback. Safe to
// call more than once.
func (v *Viewer) Close() error {
	v.closeOnce.Do(func() {
		v.closing.Store(true)

		v.mu.Lock()
		v.closed = true
		subs := v.subs
		cancel := v.cancel
		v.mu.Unlock()

		for _, s := range subs {
			s.Close()
		}
		if cancel != nil {
			cancel()
		}
		v.wg.Wait()

		var errs []error
		if v.queue != nil {
			errs = append(errs, v.queue.Close())
		}
		v.closeErr = errors.Join(errs...)
		v.log.Infof("Viewer left session %s", v.config.SessionID)
	})
	return v.closeErr
}

// Unlock enables audio output. It must be triggered by a user action.
func (v *Viewer) Unlock() error {
	if v.queue == nil {
		return fmt.Errorf("no audio output configured")
	}
	return v.queue.Unlock()
}

// Receiver exposes the ghost receiver
func (v *Viewer) Receiver() *ghost.Receiver { return v.receiver }

// Updates signals, coalesced, whenever a message was applied
func (v *Viewer) Updates() <-chan struct{} { return v.updates }

// Status returns a snapshot of the whole viewer
func (v *Viewer) Status() ViewerStatus {
	v.estimator.CheckQuality()

	st := ViewerStatus{
		SessionID: v.config.SessionID,
		Ghost:     v.receiver.Snapshot(),
		Clock:     v.estimator.Stats(),
		Malformed: v.malformed.Load(),
	}
	if v.queue != nil {
		st.Playback = v.queue.Stats()
		st.AudioOn = st.Playback.Unlocked
	}
	return st
}

func (v *Viewer) dispatch(sub *pubsub.Subscription, handle func(protocol.Message)) {
	defer v.wg.Done()

	for data := range sub.C {
		msg, err := protocol.Decode(data)
		if err != nil {
			v.malformed.Add(1)
			v.log.Warnf("Dropping malformed message on %s: %v", sub.Topic, err)
			continue
		}
		handle(msg)
		v.notify()
	}

	if v.closing.Load() {
		return
	}
	v.receiver.SetConnected(false)
	v.log.Warnf("Subscription to %s ended: %v", sub.Topic, sub.Err())
	v.notify()
}

func (v *Viewer) handleGhost(msg protocol.Message) {
	if s, ok := msg.(protocol.GhostState); ok {
		v.estimator.Observe(s.Timestamp)
	}
	if !v.receiver.HandleMessage(msg) {
		v.log.Debugf("Ignoring %s message on ghost channel", msg.Kind())
	}
}

func (v *Viewer) handleAudio(msg protocol.Message) {
	chunk, ok := msg.(protocol.AudioChunk)
	if !ok {
		v.log.Debugf("Ignoring %s message on audio channel", msg.Kind())
		return
	}
	v.estimator.Observe(chunk.Timestamp)
	if v.queue == nil {
		return
	}
	// Decode failures are logged and counted by the queue
	_ = v.queue.Enqueue(chunk)
}

func (v *Viewer) notify() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}
