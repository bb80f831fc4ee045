// ABOUTME: Version information for cookmode binaries
// ABOUTME: Version is overridden at build time with -ldflags
package version

import "fmt"

// Version is set with -ldflags "-X github.com/beatpackz/cookmode/internal/version.Version=..."
var Version = "0.1.0-dev"

const (
	// Product is advertised over mDNS and printed by the version command
	Product = "Cook Mode"
	// Manufacturer owns the product
	Manufacturer = "BeatPackz"
)

// String returns the one-line version banner
func String() string {
	return fmt.Sprintf("%s %s (%s)", Product, Version, Manufacturer)
}
