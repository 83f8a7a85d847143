package scheduler

import (
	"sync"
	"time"

	"campaigner/internal/util"
)

// Throttle enforces a minimum gap between runs of a recurring job. The
// clock is injected and the last-run timestamp lives on the value, not in
// package state, so instances are independent and testable.
type Throttle struct {
	mu   sync.Mutex
	min  time.Duration
	last time.Time
	now  func() time.Time
}

func NewThrottle(min time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = util.NowUTC
	}
	return &Throttle{min: min, now: now}
}

// Allow reports whether enough time has passed since the last permitted
// run, and records the run when it has.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.min {
		return false
	}
	t.last = now
	return true
}

// Reset clears the last-run timestamp so the next Allow succeeds.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.mu.Unlock()
}
