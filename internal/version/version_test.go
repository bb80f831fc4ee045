// ABOUTME: Tests for version constants
// ABOUTME: Ensures version information is properly defined
package version

import (
	"strings"
	"testing"
)

func TestVersionDefined(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if len(Version) > 100 {
		t.Error("Version string is unreasonably long")
	}
}

func TestProductDefined(t *testing.T) {
	if Product == "" || Manufacturer == "" {
		t.Error("Product and Manufacturer should not be empty")
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, want := range []string{Product, Version, Manufacturer} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in %q", want, s)
		}
	}
}

func TestVersionNotPlaceholder(t *testing.T) {
	placeholders := []string{"TODO", "FIXME", "XXX", "placeholder"}

	for _, placeholder := range placeholders {
		if Version == placeholder || Product == placeholder || Manufacturer == placeholder {
			t.Errorf("version info should not be placeholder value: %s", placeholder)
		}
	}
}
