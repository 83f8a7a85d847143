package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestThrottleAllowsFirstRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	th := NewThrottle(30*time.Second, clock.Now)

	require.True(t, th.Allow())
}

func TestThrottleBlocksWithinGap(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	th := NewThrottle(30*time.Second, clock.Now)

	require.True(t, th.Allow())

	clock.Advance(10 * time.Second)
	require.False(t, th.Allow())

	clock.Advance(25 * time.Second)
	require.True(t, th.Allow())
}

func TestThrottleBlockedAttemptDoesNotExtendGap(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	th := NewThrottle(30*time.Second, clock.Now)

	require.True(t, th.Allow())
	clock.Advance(29 * time.Second)
	require.False(t, th.Allow())
	clock.Advance(time.Second)
	require.True(t, th.Allow(), "gap measured from last permitted run")
}

func TestThrottleReset(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	th := NewThrottle(time.Hour, clock.Now)

	require.True(t, th.Allow())
	require.False(t, th.Allow())

	th.Reset()
	require.True(t, th.Allow())
}

func TestThrottleInstancesAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	a := NewThrottle(time.Minute, clock.Now)
	b := NewThrottle(time.Minute, clock.Now)

	require.True(t, a.Allow())
	require.True(t, b.Allow(), "no shared process-wide state")
}
