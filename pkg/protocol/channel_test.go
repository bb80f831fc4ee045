// ABOUTME: Tests for session channel naming
// ABOUTME: Tests environment detection and topic layout
package protocol

import "testing"

func TestEnvironment(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"", EnvDev},
		{"localhost", EnvDev},
		{"localhost:8930", EnvDev},
		{"127.0.0.1", EnvDev},
		{"127.0.1.1:9000", EnvDev},
		{"[::1]:8930", EnvDev},
		{"studio.local", EnvDev},
		{"ws://localhost:8930/ws", EnvDev},
		{"relay.beatpackz.com", EnvProd},
		{"wss://relay.beatpackz.com/ws", EnvProd},
		{"10.0.0.5:8930", EnvProd},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := Environment(tt.host); got != tt.want {
				t.Errorf("Environment(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

func TestChannelName(t *testing.T) {
	if got := ChannelName(EnvProd, "abc", ChannelGhost); got != "prod:cook-session:abc:ghost" {
		t.Errorf("unexpected channel %q", got)
	}

	ghost, audio := SessionChannels("localhost", "s1")
	if ghost != "dev:cook-session:s1:ghost" {
		t.Errorf("unexpected ghost channel %q", ghost)
	}
	if audio != "dev:cook-session:s1:audio" {
		t.Errorf("unexpected audio channel %q", audio)
	}
}
