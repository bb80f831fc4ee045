// ABOUTME: Relay dashboard for displaying connected clients and traffic
// ABOUTME: Real-time relay status display using bubbletea
package relay

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Dashboard manages the relay TUI
type Dashboard struct {
	server   *Server
	program  *tea.Program
	quitChan chan struct{}
}

// dashboardModel is the bubbletea model for the relay TUI
type dashboardModel struct {
	name      string
	addr      string
	stats     Stats
	clients   []ClientInfo
	startTime time.Time
	now       time.Time
	quitting  bool
	quitChan  chan struct{}
	poll      func() (Stats, []ClientInfo)
}

type tickMsg time.Time

func (m dashboardModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		m.now = time.Time(msg)
		if m.poll != nil {
			m.stats, m.clients = m.poll()
		}
		return m, tickEvery()
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down relay...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	clientHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	warnStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("203"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Cook Mode Relay"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Relay: "))
	b.WriteString(valueStyle.Render(m.name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Listening: "))
	b.WriteString(valueStyle.Render(m.addr))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(m.now.Sub(m.startTime).Round(time.Second).String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Traffic: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d topics, %d published, %d delivered",
		m.stats.Topics, m.stats.Published, m.stats.Delivered)))
	if m.stats.Dropped > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf(", %d dropped", m.stats.Dropped)))
	}
	b.WriteString("\n\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Connected Clients (%d)", len(m.clients))))
	b.WriteString("\n\n")

	if len(m.clients) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	} else {
		for _, c := range m.clients {
			b.WriteString(fmt.Sprintf("  • %s", shortID(c.ID)))
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %d topics)", c.Remote, c.Topics)))
			if c.Dropped > 0 {
				b.WriteString(warnStyle.Render(fmt.Sprintf(" %d dropped", c.Dropped)))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// NewDashboard creates a dashboard for s
func NewDashboard(s *Server) *Dashboard {
	return &Dashboard{
		server:   s,
		quitChan: make(chan struct{}, 1),
	}
}

func (d *Dashboard) model(addr string) dashboardModel {
	now := time.Now()
	return dashboardModel{
		name:      d.server.config.Name,
		addr:      addr,
		startTime: now,
		now:       now,
		quitChan:  d.quitChan,
		poll: func() (Stats, []ClientInfo) {
			clients := d.server.Clients()
			sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
			return d.server.Stats(), clients
		},
	}
}

// Run blocks showing the dashboard until the user quits or Stop is called
func (d *Dashboard) Run(addr string) error {
	d.program = tea.NewProgram(d.model(addr), tea.WithAltScreen())
	_, err := d.program.Run()
	return err
}

// Stop closes the dashboard
func (d *Dashboard) Stop() {
	if d.program != nil {
		d.program.Quit()
	}
}

// QuitChan signals when the user asks to quit
func (d *Dashboard) QuitChan() <-chan struct{} {
	return d.quitChan
}
