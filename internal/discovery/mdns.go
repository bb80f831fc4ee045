// ABOUTME: mDNS service discovery for Cook Mode relays
// ABOUTME: Handles both advertisement (relay side) and browsing (host and viewer side)
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the DNS-SD type relays advertise under
const ServiceType = "_cookmode-relay._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string // WebSocket path, default /ws
	Logger      *zap.SugaredLogger
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	log    *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc
	relays chan *RelayInfo

	mu     sync.Mutex
	server *mdns.Server
}

// RelayInfo describes a discovered relay
type RelayInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the relay's WebSocket endpoint
func (r *RelayInfo) URL() string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(r.Host, fmt.Sprint(r.Port)), r.Path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = "/ws"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		log:    config.Logger,
		ctx:    ctx,
		cancel: cancel,
		relays: make(chan *RelayInfo, 10),
	}
}

// Advertise announces the relay on the local network until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	m.log.Infof("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for relays in the background. Results arrive on Relays.
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for relays
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				relay := entryToRelay(entry)
				if relay == nil {
					continue
				}

				m.log.Infof("Discovered relay: %s at %s:%d", relay.Name, relay.Host, relay.Port)

				select {
				case m.relays <- relay:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = 3 * time.Second
		params.Entries = entries
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			m.log.Debugf("mDNS query failed: %v", err)
		}
		close(entries)
		<-done
	}
}

// Relays returns the channel of discovered relays
func (m *Manager) Relays() <-chan *RelayInfo {
	return m.relays
}

// Stop stops advertising and browsing. Safe to call more than once.
func (m *Manager) Stop() {
	m.cancel()
}

// Discover runs one query and returns the first relay found
func Discover(ctx context.Context, timeout time.Duration) (*RelayInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 10)
	found := make(chan *RelayInfo, 1)

	go func() {
		for entry := range entries {
			if relay := entryToRelay(entry); relay != nil {
				select {
				case found <- relay:
				default:
				}
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	queryErr := make(chan error, 1)
	go func() {
		queryErr <- mdns.Query(params)
		close(entries)
	}()

	select {
	case relay := <-found:
		return relay, nil
	case err := <-queryErr:
		if err != nil {
			return nil, fmt.Errorf("mDNS query failed: %w", err)
		}
		select {
		case relay := <-found:
			return relay, nil
		default:
		}
		return nil, fmt.Errorf("no relay found within %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func entryToRelay(entry *mdns.ServiceEntry) *RelayInfo {
	if entry == nil || entry.AddrV4 == nil || !strings.Contains(entry.Name, ServiceType) {
		return nil
	}

	path := "/ws"
	for _, field := range entry.InfoFields {
		if strings.HasPrefix(field, "path=") {
			path = strings.TrimPrefix(field, "path=")
		}
	}

	name := entry.Name
	if i := strings.Index(name, "."+ServiceType); i > 0 {
		name = name[:i]
	}

	return &RelayInfo{
		Name: name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: path,
	}
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
