// ABOUTME: Tests for the host subcommand helpers
// ABOUTME: Covers codec wiring, manifest reloads and the stdin console commands
package main

import (
	"context"
	"testing"

	"github.com/beatpackz/cookmode/internal/config"
	"github.com/beatpackz/cookmode/pkg/audio"
	"github.com/beatpackz/cookmode/pkg/beat"
	"github.com/beatpackz/cookmode/pkg/pubsub"
	"github.com/beatpackz/cookmode/pkg/session"
	"github.com/beatpackz/cookmode/pkg/transport"
	"go.uber.org/zap"
)

func TestHostTransportConfig(t *testing.T) {
	hc := config.Default().Host
	hc.Codec = audio.CodecWAV

	tc, enc, err := hostTransportConfig(hc, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("hostTransportConfig: %v", err)
	}
	defer enc.Close()

	if enc.Codec() != audio.CodecWAV {
		t.Errorf("codec = %s, want wav", enc.Codec())
	}
	if tc.BlockSize != hc.BlockSize || tc.SampleRate != hc.SampleRate {
		t.Errorf("block/rate = %d/%d, want %d/%d", tc.BlockSize, tc.SampleRate, hc.BlockSize, hc.SampleRate)
	}
	if tc.Monitor != nil {
		t.Error("monitor should be off by default")
	}
}

func TestHostTransportConfigUnknownCodec(t *testing.T) {
	hc := config.Default().Host
	hc.Codec = "mp3"

	if _, _, err := hostTransportConfig(hc, zap.NewNop().Sugar()); err == nil {
		t.Error("expected error for unknown codec")
	}
}

func newConsoleHost(t *testing.T) *session.Host {
	t.Helper()
	bus := pubsub.NewMemory()
	t.Cleanup(func() { bus.Close() })

	log := zap.NewNop().Sugar()
	tc, enc, err := hostTransportConfig(config.Default().Host, log)
	if err != nil {
		t.Fatalf("hostTransportConfig: %v", err)
	}

	host, err := session.NewHost(session.HostConfig{
		SessionID: "console",
		Bus:       bus,
		Transport: tc,
		Encoder:   enc,
		Logger:    log,
	})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	t.Cleanup(func() { host.Close() })

	if err := host.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return host
}

func TestHostCommand(t *testing.T) {
	host := newConsoleHost(t)
	ctx := context.Background()
	log := zap.NewNop().Sugar()

	tests := []struct {
		line string
		quit bool
	}{
		{"", false},
		{"bpm 90", false},
		{"bpm fast", false},
		{"seek 1.5", false},
		{"loop 8 4", false},
		{"loop 4 12", false},
		{"clip only-track", false},
		{"clip drums loop", false},
		{"pad 3", false},
		{"status", false},
		{"dance", false},
		{"quit", true},
		{"exit", true},
	}

	for _, tt := range tests {
		if got := hostCommand(ctx, host, tt.line, log); got != tt.quit {
			t.Errorf("hostCommand(%q) = %v, want %v", tt.line, got, tt.quit)
		}
	}

	if bpm := host.Engine().BPM(); bpm != 90 {
		t.Errorf("BPM = %v, want 90", bpm)
	}
	if lr := host.State().LoopRegion; lr == nil || lr.Start != 4 || lr.End != 12 || !lr.Enabled {
		t.Errorf("loop = %+v, want enabled [4, 12)", lr)
	}
}

func TestParseLoop(t *testing.T) {
	tests := []struct {
		args    []string
		want    *beat.LoopRegion
		wantErr bool
	}{
		{[]string{"0", "16"}, &beat.LoopRegion{Start: 0, End: 16, Enabled: true}, false},
		{[]string{"off"}, &beat.LoopRegion{}, false},
		{[]string{"reset"}, nil, false},
		{[]string{"one", "2"}, nil, true},
		{[]string{"4"}, nil, true},
		{nil, nil, true},
	}

	for _, tt := range tests {
		got, err := parseLoop(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLoop(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("parseLoop(%v) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}

func TestApplyManifestOutOfRangeBPM(t *testing.T) {
	host := newConsoleHost(t)
	ctx := context.Background()
	log := zap.NewNop().Sugar()
	m := &config.Manifest{BPM: 300}

	applyManifest(ctx, host, m, log)
	if bpm := host.Engine().BPM(); bpm != transport.MaxBPM {
		t.Fatalf("BPM = %v, want %v", bpm, transport.MaxBPM)
	}

	if err := host.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// A reload with the same tempo must leave playback alone
	applyManifest(ctx, host, m, log)
	if st := host.Engine().State(); st != transport.Playing {
		t.Errorf("state after reload = %v, want playing", st)
	}
}
