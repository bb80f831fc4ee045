// ABOUTME: Topic-based publish/subscribe abstraction for session traffic
// ABOUTME: Defines the Bus interface and the lossy Subscription shared by all backends
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscription queue depth
const DefaultBuffer = 64

var (
	// ErrClosed is returned by operations on a closed bus
	ErrClosed = errors.New("bus closed")

	// ErrDisconnected ends subscriptions whose transport went away
	ErrDisconnected = errors.New("bus disconnected")
)

// Bus carries opaque payloads between publishers and subscribers of a topic.
// Delivery is ordered per publisher and lossy when a subscriber falls behind.
type Bus interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// Subscription receives payloads for one topic. C is closed when the
// subscription ends, after which Err reports why.
type Subscription struct {
	Topic string
	C     <-chan []byte

	ch      chan []byte
	detach  func()
	stopCtx func() bool

	mu      sync.Mutex
	ended   bool
	err     error
	once    sync.Once
	dropped atomic.Uint64
}

func newSubscription(ctx context.Context, topic string, buffer int, detach func()) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan []byte, buffer)
	s := &Subscription{
		Topic:  topic,
		C:      ch,
		ch:     ch,
		detach: detach,
	}
	if ctx != nil {
		s.stopCtx = context.AfterFunc(ctx, s.Close)
	}
	return s
}

// deliver queues data without blocking. A full queue drops the payload.
func (s *Subscription) deliver(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return false
	}
	select {
	case s.ch <- data:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// end closes C with err. Only the first call has effect.
func (s *Subscription) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.ch)
}

// Close detaches from the bus and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.stopCtx != nil {
			s.stopCtx()
		}
		if s.detach != nil {
			s.detach()
		}
		s.end(nil)
	})
}

// Err returns the reason the subscription ended, nil for a local Close
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped reports payloads discarded because the queue was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}
