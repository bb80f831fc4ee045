// ABOUTME: Host clock tracking with drift compensation for viewers
// ABOUTME: Estimates the offset between host timestamps and the local clock
package sync

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	smoothingRate = 0.1
	// Residuals beyond this suggest a host clock jump or a stalled relay
	maxResidualMillis = 500.0
	// Jitter above this degrades quality
	degradedJitterMillis = 50.0
	// No samples for this long means the host is gone
	lostAfter = 5 * time.Second
	// Crystal drift is parts per million; anything larger is jitter
	maxDrift = 0.001
)

// Quality represents how trustworthy the estimate is
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// Stats is a snapshot of the estimator
type Stats struct {
	// Offset is local time minus host time at the last update. Without a
	// round trip it folds network delay and clock skew together.
	Offset   time.Duration
	Drift    float64
	Jitter   time.Duration
	Quality  Quality
	Samples  int
	Rejected int
	LastSync time.Time
}

// Estimator tracks local-minus-host offset and its drift from the host
// timestamps carried on every state and audio message
type Estimator struct {
	mu  sync.RWMutex
	clk clock.Clock
	log *zap.SugaredLogger

	offset      float64 // ms
	drift       float64 // ms per ms
	jitter      float64 // ms, smoothed absolute residual
	lastLocal   int64   // local ms at the last accepted sample
	lastSync    time.Time
	sampleCount int
	rejected    int
	quality     Quality
}

// NewEstimator creates an estimator on clk. A nil clock means wall time.
func NewEstimator(clk clock.Clock, logger *zap.SugaredLogger) *Estimator {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Estimator{
		clk:     clk,
		log:     logger,
		quality: QualityLost,
	}
}

// Observe records a host timestamp (Unix ms) seen now. It returns false
// when the sample was rejected.
func (e *Estimator) Observe(hostMillis int64) bool {
	now := e.clk.Now()
	local := now.UnixMilli()
	measured := float64(local - hostMillis)

	e.mu.Lock()
	defer e.mu.Unlock()

	// First sample: take the offset as is, no drift yet
	if e.sampleCount == 0 {
		e.offset = measured
		e.lastLocal = local
		e.lastSync = now
		e.sampleCount++
		e.quality = QualityGood
		e.log.Debugf("Initial host offset: %.0fms", e.offset)
		return true
	}

	dt := float64(local - e.lastLocal)
	if dt < 0 {
		e.rejected++
		e.log.Debugf("Discarding host timestamp: local clock went backwards")
		return false
	}

	predicted := e.offset + e.drift*dt
	residual := measured - predicted
	if residual > maxResidualMillis || residual < -maxResidualMillis {
		e.rejected++
		e.log.Debugf("Discarding host timestamp: residual %.0fms", residual)
		return false
	}

	e.offset = predicted + smoothingRate*residual
	if dt > 0 {
		e.drift += smoothingRate * residual / dt
		e.drift = max(-maxDrift, min(maxDrift, e.drift))
	}
	abs := residual
	if abs < 0 {
		abs = -abs
	}
	e.jitter += smoothingRate * (abs - e.jitter)

	e.lastLocal = local
	e.lastSync = now
	e.sampleCount++

	if e.jitter < degradedJitterMillis {
		e.quality = QualityGood
	} else {
		e.quality = QualityDegraded
	}
	return true
}

// CheckQuality marks the estimate lost when samples stopped arriving
func (e *Estimator) CheckQuality() Quality {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sampleCount > 0 && e.clk.Since(e.lastSync) > lostAfter {
		e.quality = QualityLost
	}
	return e.quality
}

// HostToLocal converts a host timestamp (Unix ms) to local time. Before
// any sample the clocks are assumed equal.
func (e *Estimator) HostToLocal(hostMillis int64) time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.sampleCount == 0 {
		return time.UnixMilli(hostMillis)
	}

	// local = host + offset + drift*(local - lastLocal), solved for local
	local := (float64(hostMillis) + e.offset - e.drift*float64(e.lastLocal)) / (1 - e.drift)
	return time.UnixMilli(int64(local))
}

// Offset returns the current offset estimate
func (e *Estimator) Offset() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return millis(e.offset)
}

// Stats returns a snapshot
func (e *Estimator) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Offset:   millis(e.offset),
		Drift:    e.drift,
		Jitter:   millis(e.jitter),
		Quality:  e.quality,
		Samples:  e.sampleCount,
		Rejected: e.rejected,
		LastSync: e.lastSync,
	}
}

// Reset forgets every sample, e.g. after a reconnect to another relay
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offset, e.drift, e.jitter = 0, 0, 0
	e.lastLocal = 0
	e.lastSync = time.Time{}
	e.sampleCount, e.rejected = 0, 0
	e.quality = QualityLost
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
