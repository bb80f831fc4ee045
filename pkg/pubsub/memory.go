// ABOUTME: In-process pub/sub hub
// ABOUTME: Fans published payloads out to local subscribers without blocking
package pubsub

import (
	"context"
	"sync"
)

// Memory is a Bus that lives entirely in one process
type Memory struct {
	Buffer int

	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	closed bool
}

// NewMemory creates an empty in-process hub
func NewMemory() *Memory {
	return &Memory{
		Buffer: DefaultBuffer,
		topics: make(map[string]map[*Subscription]struct{}),
	}
}

// Publish hands data to every current subscriber of topic
func (m *Memory) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	// Subscribers must not see later mutations of the caller's slice
	payload := append([]byte(nil), data...)
	for sub := range m.topics[topic] {
		sub.deliver(payload)
	}
	return nil
}

// Subscribe registers a new subscriber. Cancelling ctx closes it.
func (m *Memory) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	var sub *Subscription
	sub = newSubscription(ctx, topic, m.Buffer, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.topics[topic]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(m.topics, topic)
			}
		}
	})

	subs, ok := m.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		m.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	return sub, nil
}

// Disconnect ends every subscription with ErrDisconnected while keeping
// the hub usable, the way a dropped network channel would
func (m *Memory) Disconnect() {
	m.mu.Lock()
	topics := m.topics
	m.topics = make(map[string]map[*Subscription]struct{})
	m.mu.Unlock()

	for _, subs := range topics {
		for sub := range subs {
			sub.end(ErrDisconnected)
		}
	}
}

// Close ends all subscriptions. Safe to call more than once.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	topics := m.topics
	m.topics = nil
	m.mu.Unlock()

	for _, subs := range topics {
		for sub := range subs {
			sub.end(ErrClosed)
		}
	}
	return nil
}
