// ABOUTME: Bounded recent-event buffers for the viewer
// ABOUTME: Keeps the newest entries per kind and ages old ones out
package ghost

import (
	"time"

	"github.com/google/uuid"
)

// Event is one received discrete event
type Event[T any] struct {
	ID         string
	Payload    T
	ReceivedAt time.Time
}

// ring keeps the newest max events in arrival order
type ring[T any] struct {
	items []Event[T]
	max   int
}

func newRing[T any](max int) ring[T] {
	return ring[T]{items: make([]Event[T], 0, max), max: max}
}

func (r *ring[T]) push(payload T, now time.Time) {
	r.items = append(r.items, Event[T]{
		ID:         uuid.New().String(),
		Payload:    payload,
		ReceivedAt: now,
	})
	if len(r.items) > r.max {
		r.items = append(r.items[:0], r.items[len(r.items)-r.max:]...)
	}
}

// sweep drops events received at or before cutoff
func (r *ring[T]) sweep(cutoff time.Time) int {
	kept := r.items[:0]
	for _, e := range r.items {
		if e.ReceivedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(r.items) - len(kept)
	r.items = kept
	return removed
}

func (r *ring[T]) snapshot() []Event[T] {
	out := make([]Event[T], len(r.items))
	copy(out, r.items)
	return out
}
