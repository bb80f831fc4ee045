// ABOUTME: Host-side ghost state broadcaster
// ABOUTME: Throttles state snapshots and publishes discrete events immediately
package ghost

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beatpackz/cookmode/pkg/protocol"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultThrottle is the minimum spacing between state broadcasts
const DefaultThrottle = 50 * time.Millisecond

// Publisher writes an encoded message to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// BroadcasterConfig holds broadcaster configuration
type BroadcasterConfig struct {
	Publisher Publisher
	Topic     string
	Clock     clock.Clock
	Throttle  time.Duration
	Logger    *zap.SugaredLogger
}

// Broadcaster publishes ghost traffic from the host. Sends are best effort:
// nothing is acknowledged or retried.
type Broadcaster struct {
	config BroadcasterConfig
	clk    clock.Clock
	log    *zap.SugaredLogger

	mu       sync.Mutex
	lastSent time.Time
	hasSent  bool

	sent      atomic.Uint64
	throttled atomic.Uint64
	failed    atomic.Uint64
}

// BroadcasterStats counts broadcaster activity
type BroadcasterStats struct {
	Sent      uint64
	Throttled uint64
	Failed    uint64
}

// NewBroadcaster creates a broadcaster for one ghost topic
func NewBroadcaster(config BroadcasterConfig) *Broadcaster {
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Throttle <= 0 {
		config.Throttle = DefaultThrottle
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	return &Broadcaster{
		config: config,
		clk:    config.Clock,
		log:    config.Logger,
	}
}

// BroadcastState publishes state stamped with the current time. Within the
// throttle window of the previous send the call is dropped and reports false.
func (b *Broadcaster) BroadcastState(ctx context.Context, state protocol.GhostState) (bool, error) {
	b.mu.Lock()
	now := b.clk.Now()
	if b.hasSent && now.Sub(b.lastSent) < b.config.Throttle {
		b.mu.Unlock()
		b.throttled.Add(1)
		return false, nil
	}
	b.lastSent = now
	b.hasSent = true
	b.mu.Unlock()

	state.Timestamp = now.UnixMilli()
	if err := b.publish(ctx, state); err != nil {
		return false, err
	}
	return true, nil
}

// BroadcastClipTrigger announces a clip launch
func (b *Broadcaster) BroadcastClipTrigger(ctx context.Context, trackID, clipID string) error {
	return b.publish(ctx, protocol.ClipTrigger{
		TrackID: trackID,
		ClipID:  clipID,
		Time:    b.clk.Now().UnixMilli(),
	})
}

// BroadcastPadPress announces a pad hit
func (b *Broadcaster) BroadcastPadPress(ctx context.Context, padID string, velocity float64) error {
	return b.publish(ctx, protocol.PadPress{
		PadID:    padID,
		Velocity: velocity,
		Time:     b.clk.Now().UnixMilli(),
	})
}

func (b *Broadcaster) publish(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		b.failed.Add(1)
		return err
	}
	if err := b.config.Publisher.Publish(ctx, b.config.Topic, data); err != nil {
		b.failed.Add(1)
		b.log.Debugf("Failed to publish %s: %v", msg.Kind(), err)
		return fmt.Errorf("publish %s: %w", msg.Kind(), err)
	}
	b.sent.Add(1)
	return nil
}

// Stats returns broadcaster counters
func (b *Broadcaster) Stats() BroadcasterStats {
	return BroadcasterStats{
		Sent:      b.sent.Load(),
		Throttled: b.throttled.Load(),
		Failed:    b.failed.Load(),
	}
}
