// ABOUTME: Tests for the in-process pub/sub hub
// ABOUTME: Tests fan-out, lossy delivery and subscription lifecycle
package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) []byte {
	t.Helper()
	select {
	case data, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestMemoryFanOut(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()
	defer bus.Close()

	a, err := bus.Subscribe(ctx, "ghost")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	b, err := bus.Subscribe(ctx, "ghost")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	other, err := bus.Subscribe(ctx, "audio")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for _, msg := range []string{"one", "two", "three"} {
		if err := bus.Publish(ctx, "ghost", []byte(msg)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	for _, sub := range []*Subscription{a, b} {
		for _, want := range []string{"one", "two", "three"} {
			if got := string(receive(t, sub)); got != want {
				t.Errorf("got %q, want %q", got, want)
			}
		}
	}

	select {
	case data := <-other.C:
		t.Errorf("audio subscriber got ghost message %q", data)
	default:
	}
}

func TestMemoryCopiesPayload(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()
	defer bus.Close()

	sub, _ := bus.Subscribe(ctx, "t")
	data := []byte("abc")
	bus.Publish(ctx, "t", data)
	data[0] = 'x'

	if got := string(receive(t, sub)); got != "abc" {
		t.Errorf("payload mutated: %q", got)
	}
}

func TestMemoryDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()
	bus.Buffer = 2
	defer bus.Close()

	sub, _ := bus.Subscribe(ctx, "t")
	for i := 0; i < 5; i++ {
		if err := bus.Publish(ctx, "t", []byte{byte(i)}); err != nil {
			t.Fatalf("publish should not block or fail: %v", err)
		}
	}

	if sub.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", sub.Dropped())
	}
	if got := receive(t, sub); got[0] != 0 {
		t.Errorf("expected oldest message first, got %d", got[0])
	}
}

func TestSubscriptionClose(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()
	defer bus.Close()

	sub, _ := bus.Subscribe(ctx, "t")
	sub.Close()
	sub.Close()

	if _, ok := <-sub.C; ok {
		t.Error("expected closed channel")
	}
	if sub.Err() != nil {
		t.Errorf("local close should leave Err nil, got %v", sub.Err())
	}
	if err := bus.Publish(ctx, "t", []byte("x")); err != nil {
		t.Errorf("publish after unsubscribe failed: %v", err)
	}
}

func TestSubscriptionContextCancel(t *testing.T) {
	bus := NewMemory()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := bus.Subscribe(ctx, "t")
	cancel()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("context cancel did not close subscription")
	}
}

func TestMemoryDisconnect(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()
	defer bus.Close()

	sub, _ := bus.Subscribe(ctx, "t")
	bus.Disconnect()

	if _, ok := <-sub.C; ok {
		t.Error("expected closed channel")
	}
	if !errors.Is(sub.Err(), ErrDisconnected) {
		t.Errorf("expected ErrDisconnected, got %v", sub.Err())
	}

	if _, err := bus.Subscribe(ctx, "t"); err != nil {
		t.Errorf("hub should stay usable after disconnect: %v", err)
	}
}

func TestMemoryClose(t *testing.T) {
	ctx := context.Background()
	bus := NewMemory()

	sub, _ := bus.Subscribe(ctx, "t")
	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	if _, ok := <-sub.C; ok {
		t.Error("expected closed channel")
	}
	if !errors.Is(sub.Err(), ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", sub.Err())
	}
	if err := bus.Publish(ctx, "t", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from publish, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "t"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from subscribe, got %v", err)
	}
	sub.Close()
}
