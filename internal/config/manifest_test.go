// ABOUTME: Tests for clip manifests
// ABOUTME: Tests parsing, source resolution and hot reload
package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "clips.yaml", `
bpm: 90
clips:
  - id: drums
    source: loops/drums.wav
    offset_beats: 0
    duration_beats: 16
  - id: keys
    source: https://cdn.example.com/keys.mp3
    offset_beats: 16
    duration_beats: 8
    gain: 0.5
    muted: true
  - id: bass
    source: tone:55
    offset_beats: 0
    duration_beats: 4
    gain: 0
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.BPM != 90 || len(m.Clips) != 3 {
		t.Fatalf("unexpected manifest %+v", m)
	}

	clips := m.TransportClips()
	if clips[0].Source != filepath.Join(dir, "loops/drums.wav") {
		t.Errorf("expected relative source resolved, got %q", clips[0].Source)
	}
	if clips[0].Gain != 1 {
		t.Errorf("expected unity gain by default, got %v", clips[0].Gain)
	}
	if clips[1].Source != "https://cdn.example.com/keys.mp3" || clips[1].Gain != 0.5 || !clips[1].Muted {
		t.Errorf("unexpected remote clip %+v", clips[1])
	}
	if clips[2].Source != "tone:55" || clips[2].Gain != 0 {
		t.Errorf("unexpected tone clip %+v", clips[2])
	}
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadManifest(writeFile(t, dir, "noid.yaml", "clips:\n  - source: a.wav\n")); err == nil {
		t.Error("expected an error for a clip without id")
	}
	if _, err := LoadManifest(writeFile(t, dir, "bad.yaml", "clips: [")); err == nil {
		t.Error("expected a parse error")
	}
}

func TestWatchManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "clips.yaml", "clips: []\n")

	changes := make(chan *Manifest, 10)
	w, err := WatchManifest(path, func(m *Manifest) { changes <- m }, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// Unrelated files in the directory are ignored
	writeFile(t, dir, "other.yaml", "clips: []\n")
	writeFile(t, dir, "clips.yaml", "clips:\n  - id: a\n    source: tone:440\n    duration_beats: 4\n")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case m := <-changes:
			if len(m.Clips) == 1 && m.Clips[0].ID == "a" {
				if err := w.Close(); err != nil {
					t.Fatal(err)
				}
				if err := w.Close(); err != nil {
					t.Fatal(err)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
