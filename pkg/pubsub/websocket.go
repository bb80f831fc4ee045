// ABOUTME: WebSocket client for the Cook Mode relay
// ABOUTME: Multiplexes topic subscriptions and publishes over one connection
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame operations exchanged with the relay
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
	OpMessage     = "message"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Frame is one relay control or data message. Data must hold JSON.
type Frame struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebSocketOptions configures DialWebSocket
type WebSocketOptions struct {
	Header           http.Header
	HandshakeTimeout time.Duration
	Buffer           int
	Logger           *zap.SugaredLogger
}

// WebSocket is a Bus backed by a relay connection
type WebSocket struct {
	url  string
	opts WebSocketOptions
	log  *zap.SugaredLogger
	conn *websocket.Conn

	writeMu sync.Mutex

	mu        sync.RWMutex
	topics    map[string]map[*Subscription]struct{}
	connected bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// DialWebSocket connects to a relay at url, e.g. ws://localhost:8930/ws
func DialWebSocket(ctx context.Context, url string, opts WebSocketOptions) (*WebSocket, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	opts.Logger.Infof("Connecting to %s", url)
	conn, _, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	w := &WebSocket{
		url:       url,
		opts:      opts,
		log:       opts.Logger,
		conn:      conn,
		topics:    make(map[string]map[*Subscription]struct{}),
		connected: true,
		ctx:       cctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	go w.readMessages()

	return w, nil
}

// Publish sends data to every other subscriber of topic on the relay
func (w *WebSocket) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("publish to %s: payload is not JSON", topic)
	}
	return w.send(Frame{Op: OpPublish, Topic: topic, Data: data})
}

// Subscribe joins topic on the relay. The first local subscriber of a
// topic sends the subscribe frame and the last one to leave unsubscribes.
func (w *WebSocket) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	w.mu.Lock()
	if !w.connected {
		w.mu.Unlock()
		return nil, ErrClosed
	}

	var sub *Subscription
	sub = newSubscription(ctx, topic, w.opts.Buffer, func() {
		w.mu.Lock()
		subs, ok := w.topics[topic]
		last := false
		if ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(w.topics, topic)
				last = w.connected
			}
		}
		w.mu.Unlock()

		if last {
			if err := w.send(Frame{Op: OpUnsubscribe, Topic: topic}); err != nil {
				w.log.Debugf("Unsubscribe %s failed: %v", topic, err)
			}
		}
	})

	subs, ok := w.topics[topic]
	first := !ok
	if first {
		subs = make(map[*Subscription]struct{})
		w.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	w.mu.Unlock()

	if first {
		if err := w.send(Frame{Op: OpSubscribe, Topic: topic}); err != nil {
			sub.Close()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return sub, nil
}

// send writes one frame. gorilla/websocket allows a single concurrent writer.
func (w *WebSocket) send(f Frame) error {
	w.mu.RLock()
	connected := w.connected
	w.mu.RUnlock()
	if !connected {
		return ErrClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(f)
}

// readMessages routes incoming frames to subscribers until the connection drops
func (w *WebSocket) readMessages() {
	defer close(w.done)
	defer w.shutdown(ErrDisconnected)

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.ctx.Err() == nil {
				w.log.Warnf("Read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			w.log.Debugf("Ignoring WebSocket message type: %d", messageType)
			continue
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			w.log.Warnf("Failed to parse frame: %v", err)
			continue
		}
		if f.Op != OpMessage {
			w.log.Debugf("Unknown frame op: %s", f.Op)
			continue
		}

		w.mu.RLock()
		for sub := range w.topics[f.Topic] {
			if !sub.deliver(f.Data) {
				w.log.Debugf("Subscriber behind on %s, dropping message", f.Topic)
			}
		}
		w.mu.RUnlock()
	}
}

// shutdown marks the connection gone and ends every subscription with err
func (w *WebSocket) shutdown(err error) {
	w.mu.Lock()
	if !w.connected {
		w.mu.Unlock()
		return
	}
	w.connected = false
	topics := w.topics
	w.topics = make(map[string]map[*Subscription]struct{})
	w.mu.Unlock()

	w.cancel()
	w.conn.Close()

	for _, subs := range topics {
		for sub := range subs {
			sub.end(err)
		}
	}
	w.log.Infof("Connection to %s closed", w.url)
}

// Close sends a close frame and tears the connection down. Safe to call
// more than once.
func (w *WebSocket) Close() error {
	w.mu.RLock()
	connected := w.connected
	w.mu.RUnlock()

	if connected {
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
	}

	w.shutdown(ErrClosed)
	<-w.done
	return nil
}

// IsConnected returns connection status
func (w *WebSocket) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
