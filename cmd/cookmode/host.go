// ABOUTME: Host subcommand
// ABOUTME: Runs a host session from a clip manifest with hot reload and a stdin console
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/beatpackz/cookmode/internal/config"
	"github.com/beatpackz/cookmode/pkg/audio"
	"github.com/beatpackz/cookmode/pkg/audio/encode"
	"github.com/beatpackz/cookmode/pkg/audio/output"
	"github.com/beatpackz/cookmode/pkg/beat"
	"github.com/beatpackz/cookmode/pkg/pubsub"
	"github.com/beatpackz/cookmode/pkg/session"
	"github.com/beatpackz/cookmode/pkg/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newHostCmd(c *cli) *cobra.Command {
	var (
		bus       busFlags
		sessionID string
		manifest  string
		bpm       float64
		codec     string
		monitor   bool
		resume    bool
		autoplay  bool
	)

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a Cook Mode session",
		RunE: func(cmd *cobra.Command, args []string) error {
			hc := c.cfg.Host
			bc := c.cfg.Bus
			bus.apply(&bc)
			flags := cmd.Flags()
			if flags.Changed("session") {
				hc.SessionID = sessionID
			}
			if flags.Changed("manifest") {
				hc.Manifest = manifest
			}
			if flags.Changed("bpm") {
				hc.BPM = bpm
			}
			if flags.Changed("codec") {
				hc.Codec = codec
			}
			if flags.Changed("monitor") {
				hc.Monitor = monitor
			}
			if flags.Changed("resume-after-bpm-change") {
				hc.ResumeAfterBPMChange = resume
			}
			if flags.Changed("autoplay") {
				hc.Autoplay = autoplay
			}

			log, sync, err := c.logger(false)
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

			return runHost(ctx, hc, b, relayHost, os.Stdin, log)
		},
	}

	bus.register(cmd)
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (default: random)")
	cmd.Flags().StringVarP(&manifest, "manifest", "m", "", "Clip manifest YAML, reloaded on change")
	cmd.Flags().Float64Var(&bpm, "bpm", 120, "Initial tempo")
	cmd.Flags().StringVar(&codec, "codec", "pcm16", "Audio chunk codec: pcm16, wav or opus")
	cmd.Flags().BoolVar(&monitor, "monitor", false, "Play the master output locally")
	cmd.Flags().BoolVar(&resume, "resume-after-bpm-change", false, "Keep playing after a tempo change")
	cmd.Flags().BoolVar(&autoplay, "autoplay", false, "Start the transport once clips are loaded")
	return cmd
}

// hostTransportConfig maps the config section onto the engine and encoder
func hostTransportConfig(hc config.HostConfig, log *zap.SugaredLogger) (transport.Config, encode.Encoder, error) {
	tc := transport.Config{
		SampleRate:           hc.SampleRate,
		BlockSize:            hc.BlockSize,
		BPM:                  hc.BPM,
		ResumeAfterBPMChange: hc.ResumeAfterBPMChange,
		Logger:               log.Named("transport"),
	}
	// Opus needs every block to be one legal frame
	if hc.Codec == audio.CodecOpus {
		tc.BlockSize = encode.OpusFrameSize(hc.SampleRate)
	}
	if hc.Monitor {
		tc.Monitor = output.NewOto(log.Named("monitor"))
	}

	enc, err := encode.New(audio.Format{
		Codec:      hc.Codec,
		SampleRate: hc.SampleRate,
		Channels:   1,
		BitDepth:   16,
	}, tc.BlockSize)
	if err != nil {
		return tc, nil, err
	}
	return tc, enc, nil
}

func runHost(ctx context.Context, hc config.HostConfig, bus pubsub.Bus, relayHost string, console io.Reader, log *zap.SugaredLogger) error {
	tc, enc, err := hostTransportConfig(hc, log)
	if err != nil {
		return err
	}

	host, err := session.NewHost(session.HostConfig{
		SessionID: hc.SessionID,
		RelayHost: relayHost,
		Bus:       bus,
		Transport: tc,
		Encoder:   enc,
		Throttle:  hc.Throttle,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer host.Close()

	if err := host.Open(ctx); err != nil {
		return err
	}

	if hc.Manifest != "" {
		m, err := config.LoadManifest(hc.Manifest)
		if err != nil {
			return err
		}
		applyManifest(ctx, host, m, log)

		w, err := config.WatchManifest(hc.Manifest, func(m *config.Manifest) {
			applyManifest(ctx, host, m, log)
		}, log.Named("manifest"))
		if err != nil {
			log.Warnf("Manifest hot reload disabled: %v", err)
		} else {
			defer w.Close()
		}
	}

	if hc.Autoplay {
		if err := host.Start(); err != nil {
			return err
		}
	}

	log.Infof("Session %s is live. Viewers join with: cookmode view --session %s", host.SessionID(), host.SessionID())
	log.Infof("Console: play, pause, stop, bpm <n>, seek <seconds>, loop <start> <end>|off|reset, clip <track> <clip>, pad <id> [velocity], status, quit")

	lines := make(chan string)
	go readConsole(console, lines)

	for {
		select {
		case <-ctx.Done():
			log.Infof("Shutting down host session")
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			if quit := hostCommand(ctx, host, line, log); quit {
				return nil
			}
		}
	}
}

func applyManifest(ctx context.Context, host *session.Host, m *config.Manifest, log *zap.SugaredLogger) {
	// Compare what the engine would apply so an out-of-range tempo does
	// not stop the transport on every reload
	if m.BPM > 0 && transport.ClampBPM(m.BPM) != host.Engine().BPM() {
		if _, err := host.SetBPM(m.BPM); err != nil {
			log.Errorf("Failed to set tempo: %v", err)
		}
	}
	if err := host.SetClips(ctx, m.TransportClips()); err != nil {
		log.Errorf("Failed to load clips: %v", err)
	}
}

// parseLoop reads loop arguments in beats. "reset" returns nil, which
// hands the loop back to the transport.
func parseLoop(args []string) (*beat.LoopRegion, error) {
	switch {
	case len(args) == 1 && args[0] == "off":
		return &beat.LoopRegion{}, nil
	case len(args) == 1 && args[0] == "reset":
		return nil, nil
	case len(args) == 2:
		start, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, err
		}
		end, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, err
		}
		return &beat.LoopRegion{Start: start, End: end, Enabled: true}, nil
	}
	return nil, fmt.Errorf("expected two beat positions, off or reset")
}

func readConsole(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// hostCommand runs one console line and reports whether to quit
func hostCommand(ctx context.Context, host *session.Host, line string, log *zap.SugaredLogger) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch fields[0] {
	case "quit", "exit":
		return true
	case "play", "start":
		if err := host.Start(); err != nil {
			log.Errorf("Start failed: %v", err)
		}
	case "pause":
		if err := host.Pause(); err != nil {
			log.Errorf("Pause failed: %v", err)
		}
	case "stop":
		if err := host.Stop(); err != nil {
			log.Errorf("Stop failed: %v", err)
		}
	case "bpm":
		v, err := strconv.ParseFloat(arg(1), 64)
		if err != nil {
			log.Warnf("usage: bpm <n>")
			return false
		}
		applied, err := host.SetBPM(v)
		if err != nil {
			log.Errorf("Tempo change failed: %v", err)
			return false
		}
		log.Infof("Tempo set to %.1f", applied)
	case "seek":
		v, err := strconv.ParseFloat(arg(1), 64)
		if err != nil {
			log.Warnf("usage: seek <seconds>")
			return false
		}
		if err := host.Seek(v); err != nil {
			log.Errorf("Seek failed: %v", err)
		}
	case "loop":
		region, err := parseLoop(fields[1:])
		if err != nil {
			log.Warnf("usage: loop <start> <end> | loop off | loop reset")
			return false
		}
		if err := host.SetLoopRegion(region); err != nil {
			log.Warnf("Loop change failed: %v", err)
		}
	case "clip":
		if arg(2) == "" {
			log.Warnf("usage: clip <track> <clip>")
			return false
		}
		if err := host.TriggerClip(arg(1), arg(2)); err != nil {
			log.Warnf("Clip trigger failed: %v", err)
		}
	case "pad":
		velocity := 100.0
		if v, err := strconv.ParseFloat(arg(2), 64); err == nil {
			velocity = v
		}
		if arg(1) == "" {
			log.Warnf("usage: pad <id> [velocity]")
			return false
		}
		if err := host.PressPad(arg(1), velocity); err != nil {
			log.Warnf("Pad press failed: %v", err)
		}
	case "status":
		st := host.Stats()
		log.Infof("%s at %.2f beats, %.1f bpm, loop %.0f beats, %d clips | ghost sent %d throttled %d | audio sent %d dropped %d level %d",
			st.Transport.State, st.Transport.PositionBeats, st.Transport.BPM, st.Transport.LoopEndBeats,
			len(st.Transport.Clips), st.Ghost.Sent, st.Ghost.Throttled, st.Audio.Sent, st.Audio.Dropped, st.Level)
	default:
		log.Warnf("Unknown command %q", fields[0])
	}
	return false
}
