// ABOUTME: Audio output tests
// ABOUTME: Verifies the oto output contract without opening a device
package output

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestOtoImplementsOutput(t *testing.T) {
	var _ Output = (*Oto)(nil)
}

func TestOtoWriteBeforeOpen(t *testing.T) {
	o := NewOto(nil)
	if err := o.Write([]float32{0}, 48000); err == nil {
		t.Fatal("expected error writing to unopened output")
	}
}

func TestOtoResumeBeforeOpen(t *testing.T) {
	o := NewOto(nil)
	if err := o.Resume(); err != nil {
		t.Fatalf("resume before open should be deferred, got %v", err)
	}
	if !o.resumed {
		t.Error("expected resume to be remembered")
	}
	if err := o.Suspend(); err != nil {
		t.Fatalf("suspend before open failed: %v", err)
	}
	if o.resumed {
		t.Error("expected suspend to clear resume flag")
	}
	if err := o.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestOtoVolume(t *testing.T) {
	o := NewOto(nil)

	tests := []struct {
		input    int
		expected int
	}{
		{50, 50},
		{-10, 0},
		{150, 100},
	}
	for _, tt := range tests {
		o.SetVolume(tt.input)
		if o.Volume() != tt.expected {
			t.Errorf("SetVolume(%d): expected %d, got %d", tt.input, tt.expected, o.Volume())
		}
	}

	o.SetMuted(true)
	if !o.IsMuted() {
		t.Error("expected muted")
	}
}

func TestVolumeMultiplier(t *testing.T) {
	if volumeMultiplier(50, false) != 0.5 {
		t.Error("expected 0.5")
	}
	if volumeMultiplier(100, true) != 0 {
		t.Error("expected muted multiplier 0")
	}
}

func TestFloat32Bytes(t *testing.T) {
	out := float32Bytes([]float32{0.5, 2, -2}, 0.5)
	if len(out) != 12 {
		t.Fatalf("expected 12 bytes, got %d", len(out))
	}

	expected := []float32{0.25, 1, -1}
	for i, want := range expected {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
		if got != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, got)
		}
	}
}
