// ABOUTME: Version subcommand
// ABOUTME: Prints the product and build version
package main

import (
	"fmt"

	"github.com/beatpackz/cookmode/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// The config file is irrelevant here
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
