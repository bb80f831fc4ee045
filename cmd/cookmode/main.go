// ABOUTME: Entry point for the cookmode CLI
// ABOUTME: Runs the relay, a host session or a viewer session
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
