// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager defaults and service entry parsing
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewManagerDefaults(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Studio Relay", Port: 8930})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	if mgr.config.Path != "/ws" {
		t.Errorf("expected default path /ws, got %q", mgr.config.Path)
	}

	mgr.Stop()
	mgr.Stop()
}

func TestEntryToRelay(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  *RelayInfo
	}{
		{
			name:  "nil entry",
			entry: nil,
		},
		{
			name: "other service",
			entry: &mdns.ServiceEntry{
				Name:   "printer._ipp._tcp.local.",
				AddrV4: net.ParseIP("192.168.1.9"),
				Port:   631,
			},
		},
		{
			name: "no ipv4 address",
			entry: &mdns.ServiceEntry{
				Name: "Studio._cookmode-relay._tcp.local.",
				Port: 8930,
			},
		},
		{
			name: "relay with path",
			entry: &mdns.ServiceEntry{
				Name:       "Studio._cookmode-relay._tcp.local.",
				AddrV4:     net.ParseIP("192.168.1.20"),
				Port:       8930,
				InfoFields: []string{"path=/relay"},
			},
			want: &RelayInfo{Name: "Studio", Host: "192.168.1.20", Port: 8930, Path: "/relay"},
		},
		{
			name: "relay default path",
			entry: &mdns.ServiceEntry{
				Name:   "Studio._cookmode-relay._tcp.local.",
				AddrV4: net.ParseIP("10.0.0.2"),
				Port:   9000,
			},
			want: &RelayInfo{Name: "Studio", Host: "10.0.0.2", Port: 9000, Path: "/ws"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := entryToRelay(tt.entry)
			if tt.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRelayURL(t *testing.T) {
	r := &RelayInfo{Host: "192.168.1.20", Port: 8930, Path: "/ws"}
	if got := r.URL(); got != "ws://192.168.1.20:8930/ws" {
		t.Errorf("unexpected url %q", got)
	}
}
