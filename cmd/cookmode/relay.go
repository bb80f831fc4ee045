// ABOUTME: Relay subcommand
// ABOUTME: Serves the websocket pub/sub relay with optional mDNS and dashboard
package main

import (
	"fmt"
	"os"

	"github.com/beatpackz/cookmode/internal/relay"
	"github.com/spf13/cobra"
)

func newRelayCmd(c *cli) *cobra.Command {
	var (
		addr   string
		name   string
		noMDNS bool
		tui    bool
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a session relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := c.cfg.Relay
			if cmd.Flags().Changed("addr") {
				rc.Addr = addr
			}
			if cmd.Flags().Changed("name") {
				rc.Name = name
			}
			if noMDNS {
				rc.MDNS = false
			}
			if rc.Name == "" {
				hostname, err := os.Hostname()
				if err != nil {
					hostname = "unknown"
				}
				rc.Name = fmt.Sprintf("%s-cookmode-relay", hostname)
			}

			log, sync, err := c.logger(tui)
			if err != nil {
				return err
			}
			defer sync()

			srv := relay.New(relay.Config{
				Addr:       rc.Addr,
				Name:       rc.Name,
				Path:       rc.Path,
				EnableMDNS: rc.MDNS,
				SendBuffer: rc.SendBuffer,
				Logger:     log.Named("relay"),
			})

			ctx, stop := signalContext()
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			if tui {
				dash := relay.NewDashboard(srv)
				go func() {
					select {
					case <-ctx.Done():
					case <-dash.QuitChan():
					}
					dash.Stop()
					srv.Stop()
				}()
				if err := dash.Run(rc.Addr); err != nil {
					log.Warnf("Dashboard error: %v", err)
				}
				srv.Stop()
				return <-errCh
			}

			log.Infof("Press Ctrl-C to stop")
			select {
			case <-ctx.Done():
				log.Infof("Received signal, shutting down gracefully...")
				srv.Stop()
				return <-errCh
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8930", "Listen address")
	cmd.Flags().StringVar(&name, "name", "", "Relay name for mDNS (default: hostname-cookmode-relay)")
	cmd.Flags().BoolVar(&noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	cmd.Flags().BoolVar(&tui, "tui", false, "Show the relay dashboard")
	return cmd
}
