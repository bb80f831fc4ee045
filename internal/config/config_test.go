// ABOUTME: Tests for config loading
// ABOUTME: Tests defaults, file overrides and validation
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cookmode.yaml", `
log_level: debug
bus:
  kind: gossip
  peers:
    - /ip4/10.0.0.2/tcp/4001/p2p/QmPeer
relay:
  addr: ":9000"
  mdns: false
host:
  bpm: 96
  codec: opus
  throttle: 100ms
viewer:
  volume: 40
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.LogLevel != "debug" || cfg.Bus.Kind != BusGossip || len(cfg.Bus.Peers) != 1 {
		t.Errorf("unexpected top-level values %+v", cfg)
	}
	if cfg.Relay.Addr != ":9000" || cfg.Relay.MDNS {
		t.Errorf("unexpected relay section %+v", cfg.Relay)
	}
	if cfg.Relay.Path != "/ws" {
		t.Errorf("unset fields should keep defaults, got path %q", cfg.Relay.Path)
	}
	if cfg.Host.BPM != 96 || cfg.Host.Codec != "opus" || cfg.Host.Throttle != 100*time.Millisecond {
		t.Errorf("unexpected host section %+v", cfg.Host)
	}
	if cfg.Viewer.Volume != 40 || !cfg.Viewer.Audio {
		t.Errorf("unexpected viewer section %+v", cfg.Viewer)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.yaml", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Relay.Addr != ":8930" {
		t.Errorf("expected defaults, got %+v", cfg.Relay)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", "relay:\n  port: 1\n", "parse"},
		{"bad bus", "bus:\n  kind: carrier-pigeon\n", "unknown bus kind"},
		{"bad codec", "host:\n  codec: mp3\n", "unknown codec"},
		{"bad volume", "viewer:\n  volume: 150\n", "volume"},
		{"bad duration", "host:\n  throttle: soon\n", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml", tt.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing explicit path")
	}
}
