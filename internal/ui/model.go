// ABOUTME: Bubbletea model for the viewer TUI
// ABOUTME: Shows the ghost playhead, host events, audio state and sync quality
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/beatpackz/cookmode/internal/sync"
	"github.com/beatpackz/cookmode/pkg/beat"
	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected bool
	stale     bool
	sessionID string
	relay     string

	// Ghost
	hasState   bool
	position   float64
	bpm        float64
	playing    bool
	loop       *beat.LoopRegion
	activeView string
	events     []string

	// Sync
	syncOffset  time.Duration
	syncJitter  time.Duration
	syncQuality sync.Quality

	// Audio
	audioOn  bool
	hasSink  bool
	volume   int
	muted    bool
	received uint64
	played   uint64
	dropped  uint64
	gaps     uint64
	queued   int

	malformed uint64
	showDebug bool
	controls  *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderTransport()
	s += m.renderEvents()
	s += m.renderAudio()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders connection and sync status
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	switch {
	case m.connected && m.stale:
		connStatus = "Host silent (paused)"
	case m.connected:
		connStatus = fmt.Sprintf("Watching %s", truncate(m.sessionID, 36))
	}

	syncIcon := "✗"
	syncText := "No host clock"
	switch m.syncQuality {
	case sync.QualityGood:
		syncIcon = "✓"
		syncText = fmt.Sprintf("Latency %s (jitter %s)", ms(m.syncOffset), ms(m.syncJitter))
	case sync.QualityDegraded:
		syncIcon = "⚠"
		syncText = fmt.Sprintf("Degraded (jitter %s)", ms(m.syncJitter))
	}

	return fmt.Sprintf(`┌─ Cook Mode ──────────────────────────────────────────┐
│ Status: %-44s │
│ Sync:   %s %-42s │
├──────────────────────────────────────────────────────┤
`, connStatus, syncIcon, syncText)
}

// renderTransport renders the ghost playhead
func (m Model) renderTransport() string {
	if !m.hasState {
		return "│ Waiting for host...                                  │\n"
	}

	state := "Stopped"
	if m.playing {
		state = "Playing"
	}

	s := fmt.Sprintf("│ %-7s %-14s %6.1f BPM%-20s │\n", state, beat.BeatsToBBS(m.position), m.bpm, "")
	if m.loop != nil && m.loop.Enabled {
		s += fmt.Sprintf("│ Loop:   %-44s │\n", fmt.Sprintf("%s - %s",
			beat.BeatsToBBS(m.loop.Start), beat.BeatsToBBS(m.loop.End)))
		s += fmt.Sprintf("│ [%s] │\n", renderBar(m.loopProgress(), 1000, 50))
	}
	if m.activeView != "" {
		s += fmt.Sprintf("│ View:   %-44s │\n", truncate(m.activeView, 44))
	}
	return s
}

// renderEvents renders recent clip triggers and pad presses
func (m Model) renderEvents() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	if len(m.events) == 0 {
		return s + "│ No recent events                                     │\n"
	}
	for _, e := range m.events {
		s += fmt.Sprintf("│ %-52s │\n", truncate(e, 52))
	}
	return s
}

// renderAudio renders the audio prompt or playback stats
func (m Model) renderAudio() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	if !m.hasSink {
		return s + "│ Audio: disabled                                      │\n"
	}
	if !m.audioOn {
		return s + "│ ▶ Press a to enable audio                            │\n"
	}

	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}
	s += fmt.Sprintf("│ Volume: [%s] %3d%%%-25s │\n", renderBar(m.volume, 100, 10), m.volume, muteIcon)
	s += fmt.Sprintf("│ %-52s │\n", fmt.Sprintf("RX: %d  Played: %d  Dropped: %d  Gaps: %d",
		m.received, m.played, m.dropped, m.gaps))
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ a:Audio  ↑/↓:Volume  m:Mute  d:Debug  q:Quit          │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Relay: %-43s │
│   Queued: %-6d Malformed: %-25d │
│   Clock offset: %-36s │
`, truncate(m.relay, 43), m.queued, m.malformed, m.syncOffset)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.send(ControlMsg{Kind: ControlQuit})
		return m, tea.Quit
	case "a":
		if m.hasSink && !m.audioOn {
			m.controls.send(ControlMsg{Kind: ControlUnlock})
		}
	case "up":
		if m.volume < 100 {
			m.volume = min(m.volume+5, 100)
			m.controls.send(ControlMsg{Kind: ControlVolume, Volume: m.volume})
		}
	case "down":
		if m.volume > 0 {
			m.volume = max(m.volume-5, 0)
			m.controls.send(ControlMsg{Kind: ControlVolume, Volume: m.volume})
		}
	case "m":
		m.muted = !m.muted
		m.controls.send(ControlMsg{Kind: ControlMute, Muted: m.muted})
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	m.stale = msg.Stale
	if msg.SessionID != "" {
		m.sessionID = msg.SessionID
	}
	if msg.Relay != "" {
		m.relay = msg.Relay
	}

	if msg.HasState {
		m.hasState = true
		m.position = msg.Position
		m.bpm = msg.BPM
		m.playing = msg.Playing
		m.loop = msg.Loop
		if msg.ActiveView != "" {
			m.activeView = msg.ActiveView
		}
	}
	m.events = msg.Events

	m.syncOffset = msg.SyncOffset
	m.syncJitter = msg.SyncJitter
	m.syncQuality = msg.SyncQuality

	m.audioOn = msg.AudioOn
	m.received = msg.Received
	m.played = msg.Played
	m.dropped = msg.Dropped
	m.gaps = msg.Gaps
	m.queued = msg.Queued
	m.malformed = msg.Malformed
}

// loopProgress is the playhead's place in the loop, 0 to 1000
func (m Model) loopProgress() int {
	if m.loop == nil || m.loop.End <= m.loop.Start {
		return 0
	}
	p := (m.position - m.loop.Start) / (m.loop.End - m.loop.Start)
	return int(min(max(p, 0), 1) * 1000)
}

// StatusMsg updates TUI state
type StatusMsg struct {
	Connected   *bool
	Stale       bool
	SessionID   string
	Relay       string
	HasState    bool
	Position    float64
	BPM         float64
	Playing     bool
	Loop        *beat.LoopRegion
	ActiveView  string
	Events      []string
	SyncOffset  time.Duration
	SyncJitter  time.Duration
	SyncQuality sync.Quality
	AudioOn     bool
	Received    uint64
	Played      uint64
	Dropped     uint64
	Gaps        uint64
	Queued      int
	Malformed   uint64
}

// Utility functions
func renderBar(value, max, width int) string {
	if max <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
}
