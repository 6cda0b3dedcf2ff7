package stats

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// RateTracker converts a monotonically increasing counter into a per-second
// rate between two consecutive samples.
type RateTracker struct {
	clock quartz.Clock

	mu       sync.Mutex
	sampled  bool
	lastVal  uint64
	lastTime time.Time
	rate     float64
}

// NewRateTracker creates a tracker that timestamps samples with clock.
func NewRateTracker(clock quartz.Clock) *RateTracker {
	return &RateTracker{clock: clock}
}

// Update records a new counter value and returns the rate since the previous
// sample. The first sample, a zero interval or a counter that went backwards
// yield 0.
func (t *RateTracker) Update(count uint64) float64 {
	now := t.clock.Now("stats", "rate")

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sampled {
		t.rate = Rate(t.lastVal, t.lastTime, count, now)
	}

	t.sampled = true
	t.lastVal = count
	t.lastTime = now

	return t.rate
}

// Speed returns the rate computed by the last Update.
func (t *RateTracker) Speed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.rate
}

// Rate returns (c2-c1)/(t2-t1) in units per second. It is 0 when t2 is not
// after t1 or when c2 <= c1.
func Rate(c1 uint64, t1 time.Time, c2 uint64, t2 time.Time) float64 {
	elapsed := t2.Sub(t1)
	if elapsed <= 0 || c2 <= c1 {
		return 0
	}

	return float64(c2-c1) / elapsed.Seconds()
}
