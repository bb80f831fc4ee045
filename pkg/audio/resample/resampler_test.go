// ABOUTME: Tests for audio resampler
// ABOUTME: Tests linear interpolation resampling between sample rates
package resample

import (
	"testing"
)

func TestNew(t *testing.T) {
	r := New(44100, 48000, 2)

	if r.inputRate != 44100 {
		t.Errorf("expected inputRate 44100, got %d", r.inputRate)
	}
	if r.outputRate != 48000 {
		t.Errorf("expected outputRate 48000, got %d", r.outputRate)
	}
	if r.channels != 2 {
		t.Errorf("expected channels 2, got %d", r.channels)
	}

	if New(44100, 48000, 0).channels != 1 {
		t.Error("expected zero channels to default to mono")
	}
}

func TestResampleUpsampling(t *testing.T) {
	r := New(44100, 48000, 1)

	input := make([]float32, 441)
	for i := range input {
		input[i] = float32(i) / 441
	}

	output := make([]float32, r.OutputSamplesNeeded(len(input)))
	n := r.Resample(input, output)

	expected := 480
	if n < expected-5 || n > expected {
		t.Errorf("expected ~%d samples, got %d", expected, n)
	}

	// A ramp stays monotonic under linear interpolation
	for i := 1; i < n; i++ {
		if output[i] < output[i-1] {
			t.Fatalf("output not monotonic at %d: %v < %v", i, output[i], output[i-1])
		}
	}
}

func TestResampleDownsampling(t *testing.T) {
	r := New(48000, 24000, 2)

	input := make([]float32, 200)
	for i := range input {
		input[i] = 0.5
	}

	output := make([]float32, 100)
	n := r.Resample(input, output)

	if n < 96 || n > 100 {
		t.Errorf("expected ~100 samples, got %d", n)
	}
	for i := 0; i < n; i++ {
		if output[i] != 0.5 {
			t.Fatalf("constant signal changed at %d: %v", i, output[i])
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	r := New(44100, 48000, 1)
	if n := r.Resample(nil, make([]float32, 10)); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestConvert(t *testing.T) {
	input := []float32{0, 0.25, 0.5, 0.75}
	if out := Convert(input, 48000, 48000, 1); &out[0] != &input[0] {
		t.Error("expected same-rate convert to return input")
	}

	out := Convert(make([]float32, 4410), 44100, 48000, 1)
	if len(out) < 4790 || len(out) > 4800 {
		t.Errorf("expected ~4800 samples, got %d", len(out))
	}
}
