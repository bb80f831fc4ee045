// ABOUTME: Tests for the libp2p gossip bus
// ABOUTME: Smoke tests a loopback node's lifecycle and addressing
package pubsub

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGossipLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a libp2p host")
	}

	ctx := context.Background()
	g, err := NewGossip(ctx, GossipConfig{
		ListenAddrs: []string{"/ip4/127.0.0.1/tcp/0"},
	})
	if err != nil {
		t.Fatalf("failed to start gossip node: %v", err)
	}

	addrs := g.Addrs()
	if len(addrs) == 0 {
		t.Fatal("expected at least one address")
	}
	if !strings.Contains(addrs[0], "/p2p/"+g.ID()) {
		t.Errorf("address %s does not carry peer id", addrs[0])
	}

	sub, err := g.Subscribe(ctx, "dev:cook-session:s:ghost")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := g.Publish(ctx, "dev:cook-session:s:ghost", []byte(`{}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := g.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	for range sub.C {
		t.Error("own publish must not be delivered back")
	}
	if !errors.Is(sub.Err(), ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", sub.Err())
	}
	if err := g.Publish(ctx, "t", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestGossipRejectsBadPeer(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a libp2p host")
	}

	g, err := NewGossip(context.Background(), GossipConfig{
		ListenAddrs: []string{"/ip4/127.0.0.1/tcp/0"},
	})
	if err != nil {
		t.Fatalf("failed to start gossip node: %v", err)
	}
	defer g.Close()

	if err := g.Connect(context.Background(), "not-a-multiaddr"); err == nil {
		t.Error("expected error for invalid multiaddr")
	}
	if err := g.Connect(context.Background(), "/ip4/127.0.0.1/tcp/4001"); err == nil {
		t.Error("expected error for address without peer id")
	}
}
