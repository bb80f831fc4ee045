// ABOUTME: Tests for logger construction
// ABOUTME: Tests level parsing and file output
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"chatty", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookmode.log")

	log, sync, err := New(Options{Level: "info", File: path, Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	log.Debugf("hidden %d", 1)
	log.Infof("Relay started on %s", ":8930")
	sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "Relay started on :8930") {
		t.Errorf("expected info line in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered at info level")
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, _, err := New(Options{Level: "loud", Quiet: true}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
