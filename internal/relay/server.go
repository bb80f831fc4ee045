// ABOUTME: WebSocket pub/sub relay for Cook Mode sessions
// ABOUTME: Manages client connections, topic membership and non-blocking fan-out
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beatpackz/cookmode/internal/discovery"
	"github.com/beatpackz/cookmode/pkg/pubsub"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingPeriod    = 30 * time.Second
	pongWait      = 60 * time.Second
	writeDeadline = 10 * time.Second
	maxFrameSize  = 1 << 20
)

// Config holds relay configuration
type Config struct {
	Addr       string // listen address, default ":8930"
	Name       string
	Path       string // WebSocket path, default "/ws"
	EnableMDNS bool
	SendBuffer int // per-client queue depth, default 256
	Logger     *zap.SugaredLogger
}

// Server represents the relay
type Server struct {
	config   Config
	log      *zap.SugaredLogger
	serverID string

	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	// Client management
	mu      sync.RWMutex
	clients map[string]*Client
	topics  map[string]map[*Client]struct{}

	mdnsManager *discovery.Manager

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected relay client
type Client struct {
	ID     string
	Remote string
	Conn   *websocket.Conn

	// Output channel for encoded frames
	sendChan chan []byte

	topics  map[string]struct{}
	dropped atomic.Uint64
}

// Stats is a point-in-time view of relay activity
type Stats struct {
	Clients   int    `json:"clients"`
	Topics    int    `json:"topics"`
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// New creates a new relay instance
func New(config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":8930"
	}
	if config.Path == "" {
		config.Path = "/ws"
	}
	if config.Name == "" {
		config.Name = "Cook Mode Relay"
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}

	s := &Server{
		config:   config,
		log:      config.Logger,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		clients:  make(map[string]*Client),
		topics:   make(map[string]map[*Client]struct{}),
		stopChan: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin != "" {
				s.log.Debugf("Accepting WebSocket from origin: %s", origin)
			}
			return true
		},
	}

	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// Handler exposes the relay's HTTP routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address and serves until Stop
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(l)
}

// Serve runs the relay on l until Stop is called or the listener fails
func (s *Server) Serve(l net.Listener) error {
	s.log.Infof("Relay starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		port := 0
		if addr, ok := l.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
			Path:        s.config.Path,
			Logger:      s.log,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Warnf("Failed to start mDNS advertisement: %v", err)
		} else {
			s.log.Infof("mDNS advertisement started")
		}
	}

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Infof("WebSocket relay listening on %s%s", l.Addr(), s.config.Path)
		if err := s.httpServer.Serve(l); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Infof("Relay shutting down...")
	case err := <-errChan:
		s.log.Errorf("HTTP server error: %v", err)
		serverErr = err
	}

	s.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warnf("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	s.log.Infof("Relay stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the relay. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Close rejects new connections and drops every client. It is what Serve
// runs on the way out and is safe to call directly when only Handler is used.
func (s *Server) Close() {
	s.Stop()
	s.shutdown()
	s.wg.Wait()
}

func (s *Server) shutdown() {
	s.shutdownMu.Lock()
	already := s.isShutdown
	s.isShutdown = true
	s.shutdownMu.Unlock()
	if already {
		return
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	// Hijacked connections are not closed by http.Server.Shutdown
	s.mu.RLock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
	s.mu.RUnlock()
}

// handleHealth reports liveness and counters
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status string `json:"status"`
		Stats
	}{Status: "ok", Stats: s.Stats()})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	shut := s.isShutdown
	s.shutdownMu.RUnlock()
	if shut {
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		ID:       uuid.New().String(),
		Remote:   r.RemoteAddr,
		Conn:     conn,
		sendChan: make(chan []byte, s.config.SendBuffer),
		topics:   make(map[string]struct{}),
	}
	s.log.Infof("New WebSocket connection from %s (ID: %s)", client.Remote, client.ID)

	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(client)
}

// handleConnection registers the client, runs its writer and reads frames
// until the connection drops
func (s *Server) handleConnection(client *Client) {
	conn := client.Conn
	defer conn.Close()

	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()

	// Shutdown may have swept clients before this one registered
	s.shutdownMu.RLock()
	shut := s.isShutdown
	s.shutdownMu.RUnlock()
	if shut {
		s.removeClient(client)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.clientWriter(client)
	}()

	defer func() {
		s.removeClient(client)
		close(client.sendChan)
		<-writerDone
		s.log.Infof("Client disconnected: %s", client.ID)
	}()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugf("WebSocket error from %s: %v", client.ID, err)
			}
			return
		}
		s.handleFrame(client, data)
	}
}

// removeClient drops the client from the registry and every topic. Once it
// returns no publisher holds the client's send channel.
func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, client.ID)
	for topic := range client.topics {
		if subs, ok := s.topics[topic]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(s.topics, topic)
			}
		}
	}
	client.topics = nil
}

// clientWriter sends frames to the client and keeps the connection alive
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-client.sendChan:
			if !ok {
				return
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debugf("Error writing to %s: %v", client.ID, err)
				client.Conn.Close()
				drain(client.sendChan)
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				client.Conn.Close()
				drain(client.sendChan)
				return
			}
		}
	}
}

// drain empties ch until it is closed
func drain(ch <-chan []byte) {
	for range ch {
	}
}

// handleFrame processes one client frame
func (s *Server) handleFrame(client *Client, data []byte) {
	var f pubsub.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warnf("Error unmarshaling frame from %s: %v", client.ID, err)
		return
	}
	if f.Topic == "" {
		s.log.Warnf("Frame without topic from %s", client.ID)
		return
	}

	switch f.Op {
	case pubsub.OpSubscribe:
		s.subscribe(client, f.Topic)
	case pubsub.OpUnsubscribe:
		s.unsubscribe(client, f.Topic)
	case pubsub.OpPublish:
		s.publish(client, f.Topic, f.Data)
	default:
		s.log.Warnf("Unknown frame op from %s: %s", client.ID, f.Op)
	}
}

func (s *Server) subscribe(client *Client, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.topics == nil {
		return
	}
	subs, ok := s.topics[topic]
	if !ok {
		subs = make(map[*Client]struct{})
		s.topics[topic] = subs
	}
	subs[client] = struct{}{}
	client.topics[topic] = struct{}{}
	s.log.Debugf("Client %s subscribed to %s", client.ID, topic)
}

func (s *Server) unsubscribe(client *Client, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subs, ok := s.topics[topic]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(s.topics, topic)
		}
	}
	delete(client.topics, topic)
	s.log.Debugf("Client %s unsubscribed from %s", client.ID, topic)
}

// publish fans data out to every subscriber except the sender. A client
// whose queue is full misses the frame.
func (s *Server) publish(sender *Client, topic string, data json.RawMessage) {
	frame, err := json.Marshal(pubsub.Frame{Op: pubsub.OpMessage, Topic: topic, Data: data})
	if err != nil {
		s.log.Warnf("Error marshaling frame for %s: %v", topic, err)
		return
	}
	s.published.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.topics[topic] {
		if c == sender {
			continue
		}
		select {
		case c.sendChan <- frame:
			s.delivered.Add(1)
		default:
			c.dropped.Add(1)
			s.dropped.Add(1)
			s.log.Debugf("Client %s send buffer full, dropping frame on %s", c.ID, topic)
		}
	}
}

// Stats returns current counters
func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Clients:   len(s.clients),
		Topics:    len(s.topics),
		Published: s.published.Load(),
		Delivered: s.delivered.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// ClientInfo summarises one connection for display
type ClientInfo struct {
	ID      string
	Remote  string
	Topics  int
	Dropped uint64
}

// Clients returns a snapshot of connected clients
func (s *Server) Clients() []ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, ClientInfo{
			ID:      c.ID,
			Remote:  c.Remote,
			Topics:  len(c.topics),
			Dropped: c.dropped.Load(),
		})
	}
	return out
}
