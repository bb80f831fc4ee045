// ABOUTME: Tests for clip source loading
// ABOUTME: Covers tone, file and HTTP sources
package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beatpackz/cookmode/pkg/audio"
)

func wavFixture(frames, sampleRate, channels int) []byte {
	samples := make([]float32, frames*channels)
	for i := range samples {
		samples[i] = 0.25
	}
	return audio.FrameWAV(audio.EncodePCM16(samples), sampleRate, channels)
}

func TestSourceLoaderTone(t *testing.T) {
	l := NewSourceLoader(nil)

	data, err := l.Load(context.Background(), "tone:440?seconds=0.5", 1000)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(data) != 500 {
		t.Errorf("expected 500 samples, got %d", len(data))
	}

	data, err = l.Load(context.Background(), "tone:220", 1000)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(data) != 2000 {
		t.Errorf("expected default 2s tone, got %d samples", len(data))
	}

	for _, bad := range []string{"tone:abc", "tone:-5", "tone:440?seconds=0"} {
		if _, err := l.Load(context.Background(), bad, 1000); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

func TestSourceLoaderFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pad.wav")
	if err := os.WriteFile(path, wavFixture(500, 500, 2), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	l := NewSourceLoader(nil)
	data, err := l.Load(context.Background(), path, 1000)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// Stereo 500Hz becomes mono 1000Hz
	if len(data) < 990 || len(data) > 1000 {
		t.Errorf("expected ~1000 resampled frames, got %d", len(data))
	}

	if _, err := l.Load(context.Background(), "file://"+path, 500); err != nil {
		t.Errorf("file:// prefix should load, got %v", err)
	}

	if _, err := l.Load(context.Background(), filepath.Join(dir, "missing.wav"), 1000); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSourceLoaderHTTP(t *testing.T) {
	fixture := wavFixture(100, 1000, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/kick.wav") {
			w.Write(fixture)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l := NewSourceLoader(nil)
	data, err := l.Load(context.Background(), srv.URL+"/clips/kick.wav", 1000)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(data) != 100 {
		t.Errorf("expected 100 samples, got %d", len(data))
	}

	_, err = l.Load(context.Background(), srv.URL+"/clips/missing.wav", 1000)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 error, got %v", err)
	}
}
