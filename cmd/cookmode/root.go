// ABOUTME: Root cobra command and shared CLI state
// ABOUTME: Loads the config file and builds the logger before any subcommand runs
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/beatpackz/cookmode/internal/config"
	"github.com/beatpackz/cookmode/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries state shared by every subcommand
type cli struct {
	configPath string
	logLevel   string
	logFile    string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "cookmode",
		Short:         "Live session sync for BeatPackz Cook Mode",
		SilenceUsage:  true,
		SilenceErrors: false,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = c.logLevel
			}
			if cmd.Flags().Changed("log-file") {
				cfg.LogFile = c.logFile
			}
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (default ./cookmode.yaml or ~/.config/cookmode/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&c.logFile, "log-file", "", "Also write JSON logs to this file")

	root.AddCommand(
		newRelayCmd(c),
		newHostCmd(c),
		newViewCmd(c),
		newDemoCmd(c),
		newVersionCmd(),
	)
	return root
}

// logger builds the process logger. quiet keeps the console free for a TUI.
func (c *cli) logger(quiet bool) (*zap.SugaredLogger, func(), error) {
	return logging.New(logging.Options{
		Level: c.cfg.LogLevel,
		File:  c.cfg.LogFile,
		Quiet: quiet,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
