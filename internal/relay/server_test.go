// ABOUTME: Tests for the WebSocket relay
// ABOUTME: Runs the relay on a real listener and talks to it with the bus client
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beatpackz/cookmode/pkg/pubsub"
)

func startRelay(t *testing.T, config Config) (*Server, string) {
	t.Helper()
	s := New(config)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *pubsub.WebSocket {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus, err := pubsub.DialWebSocket(ctx, url+"/ws", pubsub.WebSocketOptions{})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func subscribers(s *Server, topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics[topic])
}

func TestRelayFanOutWithoutEcho(t *testing.T) {
	s, url := startRelay(t, Config{})
	ctx := context.Background()
	const topic = "dev:cook-session:s1:ghost"

	host := dial(t, url)
	viewerA := dial(t, url)
	viewerB := dial(t, url)

	hostSub, err := host.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	subA, _ := viewerA.Subscribe(ctx, topic)
	subB, _ := viewerB.Subscribe(ctx, topic)
	waitFor(t, "three subscribers", func() bool { return subscribers(s, topic) == 3 })

	payload := `{"type":"pad-press","payload":{"padId":"kick","velocity":90,"time":1}}`
	if err := host.Publish(ctx, topic, []byte(payload)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	for _, sub := range []*pubsub.Subscription{subA, subB} {
		select {
		case data := <-sub.C:
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil || m["type"] != "pad-press" {
				t.Errorf("unexpected payload %s", data)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("viewer did not receive message")
		}
	}

	select {
	case data := <-hostSub.C:
		t.Errorf("sender received its own publish: %s", data)
	case <-time.After(200 * time.Millisecond):
	}

	stats := s.Stats()
	if stats.Clients != 3 || stats.Topics != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Published != 1 || stats.Delivered != 2 {
		t.Errorf("expected 1 published and 2 delivered, got %+v", stats)
	}
}

func TestRelayTopicsAreIsolated(t *testing.T) {
	s, url := startRelay(t, Config{})
	ctx := context.Background()

	host := dial(t, url)
	viewer := dial(t, url)

	ghost, _ := viewer.Subscribe(ctx, "dev:cook-session:s1:ghost")
	other, _ := viewer.Subscribe(ctx, "dev:cook-session:s2:ghost")
	waitFor(t, "two topics", func() bool { return s.Stats().Topics == 2 })

	host.Publish(ctx, "dev:cook-session:s2:ghost", []byte(`{"n":1}`))

	select {
	case <-other.C:
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber of s2 did not receive")
	}
	select {
	case data := <-ghost.C:
		t.Errorf("s1 subscriber received s2 traffic: %s", data)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRelayUnsubscribe(t *testing.T) {
	s, url := startRelay(t, Config{})
	ctx := context.Background()
	const topic = "dev:cook-session:s1:audio"

	viewer := dial(t, url)
	sub, _ := viewer.Subscribe(ctx, topic)
	waitFor(t, "subscriber", func() bool { return subscribers(s, topic) == 1 })

	sub.Close()
	waitFor(t, "unsubscribe", func() bool { return subscribers(s, topic) == 0 })

	if s.Stats().Topics != 0 {
		t.Errorf("empty topic should be removed, got %+v", s.Stats())
	}
}

func TestRelayDisconnectCleansUp(t *testing.T) {
	s, url := startRelay(t, Config{})
	ctx := context.Background()
	const topic = "dev:cook-session:s1:ghost"

	viewer := dial(t, url)
	viewer.Subscribe(ctx, topic)
	waitFor(t, "subscriber", func() bool { return subscribers(s, topic) == 1 })

	viewer.Close()
	waitFor(t, "client removal", func() bool { return s.Stats().Clients == 0 })
	if subscribers(s, topic) != 0 {
		t.Error("disconnected client still subscribed")
	}
}

func TestRelayCloseEndsClientSubscriptions(t *testing.T) {
	s, url := startRelay(t, Config{})
	ctx := context.Background()

	viewer := dial(t, url)
	sub, _ := viewer.Subscribe(ctx, "t")
	waitFor(t, "subscriber", func() bool { return subscribers(s, "t") == 1 })

	s.Close()
	s.Close()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected closed subscription")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("relay close did not reach client")
	}
	if !errors.Is(sub.Err(), pubsub.ErrDisconnected) {
		t.Errorf("expected ErrDisconnected, got %v", sub.Err())
	}

	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := pubsub.DialWebSocket(dctx, url+"/ws", pubsub.WebSocketOptions{}); err == nil {
		t.Error("expected relay to refuse connections after close")
	}
}

func TestRelayHealth(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("unexpected health %+v", body)
	}
}

func TestPublishDropsForFullClient(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	sender := &Client{ID: "sender", sendChan: make(chan []byte, 1), topics: map[string]struct{}{}}
	slow := &Client{ID: "slow", sendChan: make(chan []byte, 1), topics: map[string]struct{}{}}
	s.subscribe(sender, "t")
	s.subscribe(slow, "t")

	s.publish(sender, "t", json.RawMessage(`{"n":1}`))
	s.publish(sender, "t", json.RawMessage(`{"n":2}`))

	if len(sender.sendChan) != 0 {
		t.Error("sender must not receive its own publish")
	}
	if slow.dropped.Load() != 1 {
		t.Errorf("expected 1 drop for slow client, got %d", slow.dropped.Load())
	}

	var f pubsub.Frame
	if err := json.Unmarshal(<-slow.sendChan, &f); err != nil {
		t.Fatal(err)
	}
	if f.Op != pubsub.OpMessage || string(f.Data) != `{"n":1}` {
		t.Errorf("unexpected frame %+v", f)
	}

	stats := s.Stats()
	if stats.Published != 2 || stats.Delivered != 1 || stats.Dropped != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHandleFrameIgnoresGarbage(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	c := &Client{ID: "c", sendChan: make(chan []byte, 1), topics: map[string]struct{}{}}
	for _, data := range []string{`not json`, `{"op":"subscribe"}`, `{"op":"shout","topic":"t"}`} {
		s.handleFrame(c, []byte(data))
	}
	if s.Stats().Topics != 0 {
		t.Errorf("garbage frames changed topics: %+v", s.Stats())
	}
}
