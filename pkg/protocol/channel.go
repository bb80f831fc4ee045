// ABOUTME: Session channel naming for the realtime bus
// ABOUTME: Scopes ghost and audio topics by environment and session id
package protocol

import (
	"net"
	"net/url"
	"strings"
)

// Environments
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Channel kinds within one session
const (
	ChannelGhost = "ghost"
	ChannelAudio = "audio"
)

// Environment classifies a relay host. Local hosts are dev, everything
// else is prod. host may be a bare hostname, host:port or a URL.
func Environment(host string) string {
	h := host
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		h = u.Host
	}
	if hostOnly, _, err := net.SplitHostPort(h); err == nil {
		h = hostOnly
	}
	h = strings.Trim(strings.ToLower(h), "[]")

	switch {
	case h == "", h == "localhost", h == "::1":
		return EnvDev
	case strings.HasPrefix(h, "127."):
		return EnvDev
	case strings.HasSuffix(h, ".local"), strings.HasSuffix(h, ".localhost"):
		return EnvDev
	}
	return EnvProd
}

// ChannelName builds "<env>:cook-session:<sessionID>:<kind>"
func ChannelName(env, sessionID, kind string) string {
	return env + ":cook-session:" + sessionID + ":" + kind
}

// SessionChannels returns the ghost and audio topics for a session on host
func SessionChannels(host, sessionID string) (ghost, audio string) {
	env := Environment(host)
	return ChannelName(env, sessionID, ChannelGhost), ChannelName(env, sessionID, ChannelAudio)
}
