// ABOUTME: YAML configuration for the cookmode CLI
// ABOUTME: Relay, host and viewer sections with defaults; flags override file values
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up when no path is given
const FileName = "cookmode.yaml"

// Bus kinds
const (
	BusWebSocket = "websocket"
	BusGossip    = "gossip"
	BusMemory    = "memory"
)

// Config is the whole config file
type Config struct {
	LogLevel string `yaml:"log_level,omitempty"`
	LogFile  string `yaml:"log_file,omitempty"`

	Bus    BusConfig    `yaml:"bus"`
	Relay  RelayConfig  `yaml:"relay"`
	Host   HostConfig   `yaml:"host"`
	Viewer ViewerConfig `yaml:"viewer"`
}

// BusConfig selects how a host or viewer reaches the session channels
type BusConfig struct {
	Kind string `yaml:"kind,omitempty"`
	// URL of the websocket relay; empty means discover one over mDNS
	URL              string        `yaml:"url,omitempty"`
	DiscoverTimeout  time.Duration `yaml:"discover_timeout,omitempty"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout,omitempty"`
	// Gossip listen addresses and bootstrap peers as multiaddrs
	ListenAddrs []string `yaml:"listen_addrs,omitempty"`
	Peers       []string `yaml:"peers,omitempty"`
}

// RelayConfig configures the relay server
type RelayConfig struct {
	Addr       string `yaml:"addr,omitempty"`
	Name       string `yaml:"name,omitempty"`
	Path       string `yaml:"path,omitempty"`
	MDNS       bool   `yaml:"mdns"`
	SendBuffer int    `yaml:"send_buffer,omitempty"`
}

// HostConfig configures a host session
type HostConfig struct {
	SessionID            string        `yaml:"session_id,omitempty"`
	Manifest             string        `yaml:"manifest,omitempty"`
	BPM                  float64       `yaml:"bpm,omitempty"`
	Codec                string        `yaml:"codec,omitempty"`
	SampleRate           int           `yaml:"sample_rate,omitempty"`
	BlockSize            int           `yaml:"block_size,omitempty"`
	Throttle             time.Duration `yaml:"throttle,omitempty"`
	Monitor              bool          `yaml:"monitor"`
	ResumeAfterBPMChange bool          `yaml:"resume_after_bpm_change"`
	Autoplay             bool          `yaml:"autoplay"`
}

// ViewerConfig configures a viewer session
type ViewerConfig struct {
	SessionID  string        `yaml:"session_id,omitempty"`
	Audio      bool          `yaml:"audio"`
	Volume     int           `yaml:"volume,omitempty"`
	MaxQueued  int           `yaml:"max_queued,omitempty"`
	StaleAfter time.Duration `yaml:"stale_after,omitempty"`
	NoTUI      bool          `yaml:"no_tui"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Bus: BusConfig{
			Kind:             BusWebSocket,
			DiscoverTimeout:  3 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			ListenAddrs:      []string{"/ip4/0.0.0.0/tcp/0"},
		},
		Relay: RelayConfig{
			Addr:       ":8930",
			Name:       "cookmode-relay",
			Path:       "/ws",
			MDNS:       true,
			SendBuffer: 256,
		},
		Host: HostConfig{
			BPM:        120,
			Codec:      "pcm16",
			SampleRate: 48000,
			BlockSize:  2048,
			Throttle:   50 * time.Millisecond,
		},
		Viewer: ViewerConfig{
			Audio:      true,
			Volume:     80,
			MaxQueued:  256,
			StaleAfter: 2 * time.Second,
		},
	}
}

// Load reads path over the defaults. With an empty path the working
// directory and ~/.config/cookmode are searched, and a missing file just
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = find()
		if path == "" {
			return cfg, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	switch c.Bus.Kind {
	case BusWebSocket, BusGossip, BusMemory:
	default:
		return fmt.Errorf("unknown bus kind %q", c.Bus.Kind)
	}
	switch c.Host.Codec {
	case "pcm16", "wav", "opus":
	default:
		return fmt.Errorf("unknown codec %q", c.Host.Codec)
	}
	if c.Viewer.Volume < 0 || c.Viewer.Volume > 100 {
		return fmt.Errorf("viewer volume must be in [0, 100], got %d", c.Viewer.Volume)
	}
	if c.Host.SampleRate <= 0 {
		return fmt.Errorf("host sample_rate must be positive")
	}
	return nil
}

func find() string {
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "cookmode", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
