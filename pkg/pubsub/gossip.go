// ABOUTME: libp2p GossipSub backed pub/sub mesh
// ABOUTME: Lets hosts and viewers exchange session traffic without a relay
package pubsub

import (
	"context"
	"fmt"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	gossipsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

// GossipConfig configures NewGossip
type GossipConfig struct {
	// ListenAddrs are multiaddrs to listen on, default /ip4/0.0.0.0/tcp/0
	ListenAddrs []string
	// Peers are full /p2p/ multiaddrs dialled at startup
	Peers  []string
	Buffer int
	Logger *zap.SugaredLogger
}

// Gossip is a Bus on a libp2p GossipSub mesh. Topics are joined on first use.
type Gossip struct {
	config GossipConfig
	log    *zap.SugaredLogger
	host   host.Host
	ps     *gossipsub.PubSub

	mu     sync.Mutex
	topics map[string]*gossipsub.Topic
	subs   map[*Subscription]struct{}
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGossip starts a libp2p host, joins the GossipSub router and dials
// the configured peers. Unreachable peers are logged, not fatal.
func NewGossip(ctx context.Context, config GossipConfig) (*Gossip, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if len(config.ListenAddrs) == 0 {
		config.ListenAddrs = []string{"/ip4/0.0.0.0/tcp/0"}
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings(config.ListenAddrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to start libp2p host: %w", err)
	}

	gctx, cancel := context.WithCancel(context.Background())
	ps, err := gossipsub.NewGossipSub(gctx, h)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("failed to start gossipsub: %w", err)
	}

	g := &Gossip{
		config: config,
		log:    config.Logger,
		host:   h,
		ps:     ps,
		topics: make(map[string]*gossipsub.Topic),
		subs:   make(map[*Subscription]struct{}),
		ctx:    gctx,
		cancel: cancel,
	}

	for _, addr := range config.Peers {
		if err := g.Connect(ctx, addr); err != nil {
			g.log.Warnf("Failed to connect to peer %s: %v", addr, err)
		}
	}

	g.log.Infof("Gossip node %s listening on %v", h.ID(), g.Addrs())
	return g, nil
}

// Connect dials a peer given its full /p2p/ multiaddr
func (g *Gossip) Connect(ctx context.Context, addr string) error {
	a, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("invalid multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(a)
	if err != nil {
		return fmt.Errorf("invalid peer address: %w", err)
	}
	return g.host.Connect(ctx, *info)
}

// Addrs returns dialable /p2p/ multiaddrs for this node
func (g *Gossip) Addrs() []string {
	info := peer.AddrInfo{ID: g.host.ID(), Addrs: g.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// ID returns the node's peer id
func (g *Gossip) ID() string {
	return g.host.ID().String()
}

func (g *Gossip) topicLocked(name string) (*gossipsub.Topic, error) {
	if t, ok := g.topics[name]; ok {
		return t, nil
	}
	t, err := g.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", name, err)
	}
	g.topics[name] = t
	return t, nil
}

// Publish broadcasts data on the mesh topic
func (g *Gossip) Publish(ctx context.Context, topic string, data []byte) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	t, err := g.topicLocked(topic)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	return t.Publish(ctx, data)
}

// Subscribe receives messages from other nodes on topic. The node's own
// publishes are not delivered back.
func (g *Gossip) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}
	t, err := g.topicLocked(topic)
	if err != nil {
		return nil, err
	}
	ts, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	readCtx, stopRead := context.WithCancel(g.ctx)
	var sub *Subscription
	sub = newSubscription(ctx, topic, g.config.Buffer, func() {
		stopRead()
		ts.Cancel()
		g.mu.Lock()
		delete(g.subs, sub)
		g.mu.Unlock()
	})
	g.subs[sub] = struct{}{}

	self := g.host.ID()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for {
			m, err := ts.Next(readCtx)
			if err != nil {
				if readCtx.Err() != nil {
					sub.end(nil)
				} else {
					sub.end(fmt.Errorf("%w: %v", ErrDisconnected, err))
				}
				return
			}
			if m.ReceivedFrom == self {
				continue
			}
			if !sub.deliver(m.Data) {
				g.log.Debugf("Subscriber behind on %s, dropping message", topic)
			}
		}
	}()

	return sub, nil
}

// Close leaves all topics and shuts the libp2p host down. Safe to call
// more than once.
func (g *Gossip) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	subs := g.subs
	g.subs = nil
	topics := g.topics
	g.topics = nil
	g.mu.Unlock()

	for sub := range subs {
		sub.end(ErrClosed)
		sub.Close()
	}
	g.cancel()
	g.wg.Wait()

	for name, t := range topics {
		if err := t.Close(); err != nil {
			g.log.Debugf("Failed to close topic %s: %v", name, err)
		}
	}
	return g.host.Close()
}
