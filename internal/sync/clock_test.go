// ABOUTME: Tests for host clock estimation
// ABOUTME: Tests offset tracking, outlier rejection, quality and conversion
package sync

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestEstimator() (*Estimator, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	return NewEstimator(mock, nil), mock
}

func TestInitialSample(t *testing.T) {
	e, mock := newTestEstimator()

	if q := e.CheckQuality(); q != QualityLost {
		t.Errorf("expected lost before any sample, got %v", q)
	}

	host := mock.Now().UnixMilli() - 40
	if !e.Observe(host) {
		t.Fatal("first sample rejected")
	}

	st := e.Stats()
	if st.Offset != 40*time.Millisecond {
		t.Errorf("expected 40ms offset, got %v", st.Offset)
	}
	if st.Quality != QualityGood || st.Samples != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSteadyOffsetStaysPut(t *testing.T) {
	e, mock := newTestEstimator()

	for i := 0; i < 20; i++ {
		e.Observe(mock.Now().UnixMilli() - 30)
		mock.Add(50 * time.Millisecond)
	}

	st := e.Stats()
	if st.Offset != 30*time.Millisecond {
		t.Errorf("expected 30ms offset, got %v", st.Offset)
	}
	if st.Drift != 0 || st.Jitter != 0 {
		t.Errorf("expected no drift or jitter, got %+v", st)
	}
}

func TestOffsetConvergesOnStep(t *testing.T) {
	e, mock := newTestEstimator()

	e.Observe(mock.Now().UnixMilli() - 20)
	for i := 0; i < 100; i++ {
		mock.Add(50 * time.Millisecond)
		e.Observe(mock.Now().UnixMilli() - 120)
	}

	got := e.Offset()
	if got < 110*time.Millisecond || got > 130*time.Millisecond {
		t.Errorf("expected offset near 120ms, got %v", got)
	}
}

func TestOutlierRejected(t *testing.T) {
	e, mock := newTestEstimator()

	e.Observe(mock.Now().UnixMilli() - 30)
	mock.Add(50 * time.Millisecond)

	// Host clock jumped two seconds
	if e.Observe(mock.Now().UnixMilli() + 2000) {
		t.Error("expected jump to be rejected")
	}

	st := e.Stats()
	if st.Rejected != 1 || st.Samples != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.Offset != 30*time.Millisecond {
		t.Errorf("offset moved on rejected sample: %v", st.Offset)
	}
}

func TestQualityDegradesWithJitter(t *testing.T) {
	e, mock := newTestEstimator()

	delays := []int64{0, 400}
	for i := 0; i < 60; i++ {
		e.Observe(mock.Now().UnixMilli() - delays[i%2])
		mock.Add(50 * time.Millisecond)
	}

	if q := e.CheckQuality(); q != QualityDegraded {
		t.Errorf("expected degraded quality, got %v (jitter %v)", q, e.Stats().Jitter)
	}
}

func TestQualityLostAfterSilence(t *testing.T) {
	e, mock := newTestEstimator()

	e.Observe(mock.Now().UnixMilli())
	mock.Add(4 * time.Second)
	if q := e.CheckQuality(); q != QualityGood {
		t.Errorf("expected good after 4s, got %v", q)
	}

	mock.Add(2 * time.Second)
	if q := e.CheckQuality(); q != QualityLost {
		t.Errorf("expected lost after 6s, got %v", q)
	}
}

func TestHostToLocal(t *testing.T) {
	e, mock := newTestEstimator()

	host := mock.Now().UnixMilli()
	if got := e.HostToLocal(host); !got.Equal(time.UnixMilli(host)) {
		t.Errorf("expected identity before sync, got %v", got)
	}

	e.Observe(host - 25)
	want := time.UnixMilli(host + 25)
	if got := e.HostToLocal(host); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestReset(t *testing.T) {
	e, mock := newTestEstimator()
	e.Observe(mock.Now().UnixMilli() - 10)
	e.Reset()

	st := e.Stats()
	if st.Samples != 0 || st.Offset != 0 || st.Quality != QualityLost {
		t.Errorf("expected cleared stats, got %+v", st)
	}
}

func TestQualityString(t *testing.T) {
	tests := map[Quality]string{
		QualityGood:     "good",
		QualityDegraded: "degraded",
		QualityLost:     "lost",
	}
	for q, want := range tests {
		if q.String() != want {
			t.Errorf("expected %q, got %q", want, q.String())
		}
	}
}
