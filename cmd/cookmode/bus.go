// ABOUTME: Bus construction for host and viewer commands
// ABOUTME: Dials a websocket relay (found over mDNS if needed) or joins a gossip mesh
package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/beatpackz/cookmode/internal/config"
	"github.com/beatpackz/cookmode/internal/discovery"
	"github.com/beatpackz/cookmode/pkg/pubsub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// busFlags are the transport flags shared by host and view
type busFlags struct {
	kind string
	url  string
	peer []string
}

func (f *busFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "bus", "", "Bus: websocket or gossip (default from config)")
	cmd.Flags().StringVar(&f.url, "relay", "", "Relay websocket URL (skip mDNS discovery)")
	cmd.Flags().StringSliceVar(&f.peer, "peer", nil, "Gossip bootstrap peer multiaddr (repeatable)")
}

func (f *busFlags) apply(cfg *config.BusConfig) {
	if f.kind != "" {
		cfg.Kind = f.kind
	}
	if f.url != "" {
		cfg.URL = f.url
	}
	if len(f.peer) > 0 {
		cfg.Peers = f.peer
	}
}

// openBus connects the configured bus. relayHost picks the channel
// namespace: the relay's host for websocket, empty (dev) otherwise.
func openBus(ctx context.Context, cfg config.BusConfig, log *zap.SugaredLogger) (bus pubsub.Bus, relayHost string, err error) {
	switch cfg.Kind {
	case config.BusWebSocket:
		relayURL := cfg.URL
		if relayURL == "" {
			log.Infof("Looking for a relay over mDNS...")
			relay, err := discovery.Discover(ctx, cfg.DiscoverTimeout)
			if err != nil {
				return nil, "", fmt.Errorf("no relay given and discovery failed: %w", err)
			}
			relayURL = relay.URL()
			log.Infof("Discovered relay %s at %s", relay.Name, relayURL)
		}

		u, err := url.Parse(relayURL)
		if err != nil {
			return nil, "", fmt.Errorf("invalid relay URL %q: %w", relayURL, err)
		}

		ws, err := pubsub.DialWebSocket(ctx, relayURL, pubsub.WebSocketOptions{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Logger:           log.Named("bus"),
		})
		if err != nil {
			return nil, "", err
		}
		return ws, u.Host, nil

	case config.BusGossip:
		g, err := pubsub.NewGossip(ctx, pubsub.GossipConfig{
			ListenAddrs: cfg.ListenAddrs,
			Peers:       cfg.Peers,
			Logger:      log.Named("bus"),
		})
		if err != nil {
			return nil, "", err
		}
		log.Infof("Gossip peer %s listening on %v", g.ID(), g.Addrs())
		return g, "", nil

	case config.BusMemory:
		return nil, "", fmt.Errorf("the memory bus only works inside one process; use the demo command")

	default:
		return nil, "", fmt.Errorf("unknown bus kind %q", cfg.Kind)
	}
}
