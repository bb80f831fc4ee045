// ABOUTME: Demo subcommand
// ABOUTME: Runs a host with tone clips and a viewer in one process over the memory bus
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/beatpackz/cookmode/pkg/pubsub"
	"github.com/beatpackz/cookmode/pkg/sched"
	"github.com/beatpackz/cookmode/pkg/session"
	"github.com/beatpackz/cookmode/pkg/transport"
	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
)

// demoClips is a four bar loop of test tones
var demoClips = []transport.Clip{
	{ID: "root", Source: "tone:220?seconds=2", OffsetBeats: 0, DurationBeats: 4, Gain: 0.4},
	{ID: "third", Source: "tone:277.18?seconds=2", OffsetBeats: 4, DurationBeats: 4, Gain: 0.4},
	{ID: "fifth", Source: "tone:329.63?seconds=2", OffsetBeats: 8, DurationBeats: 4, Gain: 0.4},
	{ID: "octave", Source: "tone:440?seconds=2", OffsetBeats: 12, DurationBeats: 4, Gain: 0.3},
}

func newDemoCmd(c *cli) *cobra.Command {
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a host and a viewer locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			vc := c.cfg.Viewer
			if noTUI {
				vc.NoTUI = true
			}

			log, sync, err := c.logger(!vc.NoTUI)
			if err != nil {
				return err
			}
			defer sync()

			ctx, stop := signalContext()
			defer stop()

			bus := pubsub.NewMemory()
			defer bus.Close()

			hc := c.cfg.Host
			hc.Monitor = false
			tc, enc, err := hostTransportConfig(hc, log)
			if err != nil {
				return err
			}

			host, err := session.NewHost(session.HostConfig{
				SessionID: hc.SessionID,
				Bus:       bus,
				Transport: tc,
				Encoder:   enc,
				Throttle:  hc.Throttle,
				Logger:    log.Named("host"),
			})
			if err != nil {
				return err
			}
			defer host.Close()

			if err := host.Open(ctx); err != nil {
				return err
			}
			if err := host.SetClips(ctx, demoClips); err != nil {
				return err
			}
			if err := host.Start(); err != nil {
				return err
			}
			go demoEvents(ctx, host)

			vc.SessionID = host.SessionID()
			return runViewer(ctx, viewerRun{
				config: vc,
				bus:    bus,
				label:  "in-process",
				log:    log.Named("viewer"),
			})
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Log status instead of showing the TUI")
	return cmd
}

// demoEvents fires a clip trigger at the top of every loop and a pad
// press on every bar at the default tempo
func demoEvents(ctx context.Context, host *session.Host) {
	bar := 0
	task := sched.Every(clock.New(), 2*time.Second, func(time.Time) {
		bar++
		if bar%4 == 0 {
			_ = host.TriggerClip("tones", demoClips[0].ID)
		}
		_ = host.PressPad(fmt.Sprintf("pad-%d", bar%4+1), 100)
	})
	<-ctx.Done()
	task.Stop()
}
