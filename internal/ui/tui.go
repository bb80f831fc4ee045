// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and turns viewer status into TUI messages
package ui

import (
	"fmt"
	"sort"
	"time"

	"github.com/beatpackz/cookmode/pkg/session"
	tea "github.com/charmbracelet/bubbletea"
)

// Control kinds sent from the TUI to the viewer
const (
	ControlQuit = iota
	ControlUnlock
	ControlVolume
	ControlMute
)

// ControlMsg is a user action the viewer must apply
type ControlMsg struct {
	Kind   int
	Volume int
	Muted  bool
}

// Controls carries user actions out of the TUI
type Controls struct {
	Changes chan ControlMsg
}

// NewControls creates a control channel
func NewControls() *Controls {
	return &Controls{
		Changes: make(chan ControlMsg, 10),
	}
}

func (c *Controls) send(msg ControlMsg) {
	if c == nil {
		return
	}
	select {
	case c.Changes <- msg:
	default:
	}
}

// Options configures the initial model
type Options struct {
	SessionID string
	Relay     string
	Volume    int
	HasSink   bool
}

// NewModel creates a new TUI model
func NewModel(controls *Controls, opts Options) Model {
	volume := opts.Volume
	if volume <= 0 || volume > 100 {
		volume = 100
	}
	return Model{
		sessionID: opts.SessionID,
		relay:     opts.Relay,
		volume:    volume,
		hasSink:   opts.HasSink,
		controls:  controls,
	}
}

// Run creates the TUI program. The caller starts it with p.Run and feeds
// it StatusMsg values with p.Send.
func Run(controls *Controls, opts Options) *tea.Program {
	return tea.NewProgram(NewModel(controls, opts), tea.WithAltScreen())
}

// StatusFromViewer converts a viewer snapshot into a TUI update
func StatusFromViewer(st session.ViewerStatus, now time.Time) StatusMsg {
	connected := st.Ghost.Connected
	g := st.Ghost.State

	msg := StatusMsg{
		Connected:   &connected,
		Stale:       st.Ghost.Stale,
		SessionID:   st.SessionID,
		HasState:    st.Ghost.HasState,
		Position:    g.PlayheadPosition,
		BPM:         g.BPM,
		Playing:     g.IsPlaying,
		Loop:        g.LoopRegion,
		ActiveView:  g.ActiveView,
		SyncOffset:  st.Clock.Offset,
		SyncJitter:  st.Clock.Jitter,
		SyncQuality: st.Clock.Quality,
		AudioOn:     st.AudioOn,
		Received:    st.Playback.Received,
		Played:      st.Playback.Played,
		Dropped:     st.Playback.Dropped,
		Gaps:        st.Playback.Gaps,
		Queued:      st.Playback.Queued,
		Malformed:   st.Malformed,
	}

	type event struct {
		at   time.Time
		text string
	}
	var events []event
	for _, e := range st.Ghost.ClipTriggers {
		events = append(events, event{e.ReceivedAt, fmt.Sprintf("Clip  %s/%s", e.Payload.TrackID, e.Payload.ClipID)})
	}
	for _, e := range st.Ghost.PadPresses {
		events = append(events, event{e.ReceivedAt, fmt.Sprintf("Pad   %s vel %.0f", e.Payload.PadID, e.Payload.Velocity)})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at.After(events[j].at) })
	if len(events) > 5 {
		events = events[:5]
	}
	for _, e := range events {
		msg.Events = append(msg.Events, fmt.Sprintf("%s  %4.1fs ago", e.text, now.Sub(e.at).Seconds()))
	}
	return msg
}
