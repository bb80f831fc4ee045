// ABOUTME: Tests for the sequential playback queue
// ABOUTME: Tests ordering, no-overlap playback, unlock gating and error skipping
package playback

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beatpackz/cookmode/pkg/audio"
	"github.com/beatpackz/cookmode/pkg/audio/decode"
	"github.com/beatpackz/cookmode/pkg/protocol"
)

type fakeSink struct {
	delay     time.Duration
	resumeErr error

	active  atomic.Int32
	overlap atomic.Bool
	resumed atomic.Bool
	mu      sync.Mutex
	writes  [][]float32
	wrote   chan struct{}
}

func newFakeSink(delay time.Duration) *fakeSink {
	return &fakeSink{delay: delay, wrote: make(chan struct{}, 100)}
}

func (s *fakeSink) Write(samples []float32, sampleRate int) error {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.active.Add(-1)

	time.Sleep(s.delay)
	s.mu.Lock()
	s.writes = append(s.writes, samples)
	s.mu.Unlock()
	s.wrote <- struct{}{}
	return nil
}

func (s *fakeSink) Resume() error {
	if s.resumeErr != nil {
		return s.resumeErr
	}
	s.resumed.Store(true)
	return nil
}

func (s *fakeSink) waitWrites(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.wrote:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out after %d of %d writes", i, n)
		}
	}
}

// chunk encodes a constant-value PCM16 chunk tagged by its first sample
func chunk(value float32, seq uint64) protocol.AudioChunk {
	samples := []float32{value, value, value, value}
	return protocol.AudioChunk{
		Audio:      audio.EncodeBase64(audio.EncodePCM16(samples)),
		Timestamp:  int64(seq),
		SampleRate: 48000,
		Seq:        seq,
	}
}

func firstSample(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	return samples[0]
}

type slowDecoder struct {
	inner decode.Decoder
	calls atomic.Int32
}

func (d *slowDecoder) Decode(data []byte) ([]float32, error) {
	if d.calls.Add(1) == 2 {
		time.Sleep(100 * time.Millisecond)
	}
	return d.inner.Decode(data)
}

func (d *slowDecoder) Close() error { return nil }

func TestQueuePlaysInOrderWithoutOverlap(t *testing.T) {
	sink := newFakeSink(20 * time.Millisecond)
	q := New(Config{
		Sink: sink,
		NewDecoder: func(f audio.Format) (decode.Decoder, error) {
			return &slowDecoder{inner: decode.NewPCM16()}, nil
		},
	})
	defer q.Close()

	if err := q.Unlock(); err != nil {
		t.Fatal(err)
	}

	values := []float32{0.25, 0.5, 0.75}
	for i, v := range values {
		if err := q.Enqueue(chunk(v, uint64(i+1))); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}
	sink.waitWrites(t, 3)

	if sink.overlap.Load() {
		t.Error("two buffers played at the same time")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, w := range sink.writes {
		if got := firstSample(w); got < values[i]-0.001 || got > values[i]+0.001 {
			t.Errorf("write %d: expected %v, got %v", i, values[i], got)
		}
	}
}

func TestQueueSilentUntilUnlocked(t *testing.T) {
	sink := newFakeSink(0)
	q := New(Config{Sink: sink})
	defer q.Close()

	for i := 0; i < 3; i++ {
		q.Enqueue(chunk(0.5, uint64(i+1)))
	}

	select {
	case <-sink.wrote:
		t.Fatal("audio played before unlock")
	case <-time.After(50 * time.Millisecond):
	}
	if st := q.Stats(); st.Queued != 3 || st.Unlocked {
		t.Errorf("expected 3 queued and locked, got %+v", st)
	}

	if err := q.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := q.Unlock(); err != nil {
		t.Fatal(err)
	}
	sink.waitWrites(t, 3)

	if !sink.resumed.Load() {
		t.Error("unlock did not resume sink")
	}
	if st := q.Stats(); st.Played != 3 || st.Queued != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestQueueUnlockFailure(t *testing.T) {
	sink := newFakeSink(0)
	sink.resumeErr = errors.New("device busy")
	q := New(Config{Sink: sink})
	defer q.Close()

	if err := q.Unlock(); err == nil {
		t.Fatal("expected unlock error")
	}
	if q.Unlocked() {
		t.Error("queue must stay locked after a failed unlock")
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	sink := newFakeSink(0)
	q := New(Config{Sink: sink, MaxQueued: 2})
	defer q.Close()

	q.Enqueue(chunk(0.1, 1))
	q.Enqueue(chunk(0.2, 2))
	q.Enqueue(chunk(0.3, 3))

	if st := q.Stats(); st.Dropped != 1 || st.Queued != 2 {
		t.Fatalf("expected one drop and two queued, got %+v", st)
	}

	q.Unlock()
	sink.waitWrites(t, 2)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if got := firstSample(sink.writes[0]); got < 0.19 || got > 0.21 {
		t.Errorf("expected oldest survivor 0.2 first, got %v", got)
	}
}

func TestQueueSkipsBadChunk(t *testing.T) {
	sink := newFakeSink(0)
	q := New(Config{Sink: sink})
	defer q.Close()
	q.Unlock()

	q.Enqueue(chunk(0.25, 1))
	if err := q.Enqueue(protocol.AudioChunk{Audio: "%%%", SampleRate: 48000, Seq: 2}); err == nil {
		t.Error("expected decode error for bad base64")
	}
	if err := q.Enqueue(protocol.AudioChunk{Audio: audio.EncodeBase64([]byte{1, 2, 3}), SampleRate: 48000, Seq: 3}); err == nil {
		t.Error("expected decode error for odd-length pcm")
	}
	q.Enqueue(chunk(0.75, 4))

	sink.waitWrites(t, 2)
	st := q.Stats()
	if st.DecodeErrors != 2 || st.Played != 2 || st.Received != 4 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestQueueCountsSeqGaps(t *testing.T) {
	q := New(Config{Sink: newFakeSink(0)})
	defer q.Close()

	for _, seq := range []uint64{1, 2, 5, 6, 6, 9} {
		q.Enqueue(chunk(0.1, seq))
	}

	if got := q.Stats().Gaps; got != 4 {
		t.Errorf("expected 4 missing chunks, got %d", got)
	}
}

func TestQueueClose(t *testing.T) {
	sink := newFakeSink(0)
	q := New(Config{Sink: sink})

	q.Enqueue(chunk(0.5, 1))
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	if err := q.Enqueue(chunk(0.5, 2)); err == nil {
		t.Error("expected error after close")
	}
	if q.Stats().Queued != 0 {
		t.Error("close should discard backlog")
	}
}
