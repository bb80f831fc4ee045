// ABOUTME: View subcommand
// ABOUTME: Follows a host session in a TUI (or the log) and plays its audio
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/beatpackz/cookmode/internal/config"
	"github.com/beatpackz/cookmode/internal/ui"
	"github.com/beatpackz/cookmode/pkg/audio/output"
	"github.com/beatpackz/cookmode/pkg/ghost"
	"github.com/beatpackz/cookmode/pkg/pubsub"
	"github.com/beatpackz/cookmode/pkg/session"
	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// viewerSampleRate is the device rate; chunks at other rates are resampled
const viewerSampleRate = 48000

const tuiRefresh = 33 * time.Millisecond

func newViewCmd(c *cli) *cobra.Command {
	var (
		bus       busFlags
		sessionID string
		noAudio   bool
		volume    int
		noTUI     bool
		unlock    bool
	)

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Follow a Cook Mode session",
		RunE: func(cmd *cobra.Command, args []string) error {
			vc := c.cfg.Viewer
			bc := c.cfg.Bus
			bus.apply(&bc)
			flags := cmd.Flags()
			if flags.Changed("session") {
				vc.SessionID = sessionID
			}
			if noAudio {
				vc.Audio = false
			}
			if flags.Changed("volume") {
				vc.Volume = volume
			}
			if noTUI {
				vc.NoTUI = true
			}
			if vc.SessionID == "" {
				return fmt.Errorf("a session id is required (--session)")
			}

			log, sync, err := c.logger(!vc.NoTUI)
			if err != nil {
				return err
			}
			defer sync()

			ctx, stop := signalContext()
			defer stop()

			b, relayHost, err := openBus(ctx, bc, log)
			if err != nil {
				return err
			}
			defer b.Close()

			label := bc.URL
			if label == "" {
				label = relayHost
			}
			if bc.Kind == config.BusGossip {
				label = "gossip"
			}

			return runViewer(ctx, viewerRun{
				config:    vc,
				bus:       b,
				relayHost: relayHost,
				label:     label,
				unlock:    unlock,
				log:       log,
			})
		},
	}

	bus.register(cmd)
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to follow")
	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "Do not play host audio")
	cmd.Flags().IntVar(&volume, "volume", 80, "Playback volume (0-100)")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Log status instead of showing the TUI")
	cmd.Flags().BoolVar(&unlock, "unlock", false, "Enable audio without a key press")
	return cmd
}

type viewerRun struct {
	config    config.ViewerConfig
	bus       pubsub.Bus
	relayHost string
	label     string
	unlock    bool
	log       *zap.SugaredLogger
}

func runViewer(ctx context.Context, r viewerRun) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vc := r.config
	log := r.log

	var out *output.Oto
	if vc.Audio {
		out = output.NewOto(log.Named("output"))
		if err := out.Open(viewerSampleRate, 1); err != nil {
			log.Warnf("Audio disabled: %v", err)
			out = nil
		} else {
			out.SetVolume(vc.Volume)
			defer out.Close()
		}
	}

	cfg := session.ViewerConfig{
		SessionID: vc.SessionID,
		RelayHost: r.relayHost,
		Bus:       r.bus,
		MaxQueued: vc.MaxQueued,
		Receiver:  ghost.ReceiverConfig{StaleAfter: vc.StaleAfter},
		Logger:    log,
	}
	if out != nil {
		cfg.Sink = out
	}

	viewer, err := session.NewViewer(cfg)
	if err != nil {
		return err
	}
	defer viewer.Close()

	if err := viewer.Open(ctx); err != nil {
		return err
	}
	log.Infof("Following session %s via %s", vc.SessionID, r.label)

	if r.unlock && out != nil {
		if err := viewer.Unlock(); err != nil {
			log.Warnf("Audio unlock failed: %v", err)
		}
	}

	if vc.NoTUI {
		return logViewer(ctx, viewer, log)
	}
	return tuiViewer(ctx, cancel, viewer, out, r, log)
}

func tuiViewer(ctx context.Context, cancel context.CancelFunc, viewer *session.Viewer, out *output.Oto, r viewerRun, log *zap.SugaredLogger) error {
	controls := ui.NewControls()
	p := ui.Run(controls, ui.Options{
		SessionID: r.config.SessionID,
		Relay:     r.label,
		Volume:    r.config.Volume,
		HasSink:   out != nil,
	})

	go func() {
		ticker := time.NewTicker(tuiRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.Quit()
				return
			case <-ticker.C:
				p.Send(ui.StatusFromViewer(viewer.Status(), time.Now()))
			case <-viewer.Updates():
				// Connection changes show up before the next frame
				p.Send(ui.StatusFromViewer(viewer.Status(), time.Now()))
			case ctl := <-controls.Changes:
				switch ctl.Kind {
				case ui.ControlQuit:
					cancel()
				case ui.ControlUnlock:
					if err := viewer.Unlock(); err != nil {
						log.Warnf("Audio unlock failed: %v", err)
					}
				case ui.ControlVolume:
					if out != nil {
						out.SetVolume(ctl.Volume)
					}
				case ui.ControlMute:
					if out != nil {
						out.SetMuted(ctl.Muted)
					}
				}
			}
		}
	}()

	_, err := p.Run()
	cancel()
	return err
}

func logViewer(ctx context.Context, viewer *session.Viewer, log *zap.SugaredLogger) error {
	ticker := clock.New().Ticker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := viewer.Status()
			g := st.Ghost
			if !g.HasState {
				log.Infof("Waiting for host (connected=%v)", g.Connected)
				continue
			}
			log.Infof("%s %s %.1f bpm stale=%v | offset %dms jitter %dms %s | audio played %d dropped %d gaps %d",
				viewer.Receiver().BBS(), playState(g.State.IsPlaying), g.State.BPM, g.Stale,
				st.Clock.Offset.Milliseconds(), st.Clock.Jitter.Milliseconds(), st.Clock.Quality,
				st.Playback.Played, st.Playback.Dropped, st.Playback.Gaps)
		}
	}
}

func playState(playing bool) string {
	if playing {
		return "playing"
	}
	return "stopped"
}
