package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant a DeterministicClock returns.
var DefaultEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe wall clock for tests that advances by
// a fixed step on every call.
//
// Unlike store.MonotonicClock it never reads the system time, so the same
// scenario produces identical timestamps on every run. It can be reset for
// test reuse.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch time.Time
	step  time.Duration
	ticks int64
}

// NewDeterministicClock creates a clock starting at DefaultEpoch and
// advancing one millisecond per call.
//
// The first call to Now() returns DefaultEpoch.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch, time.Millisecond)
}

// NewDeterministicClockAt creates a clock starting at epoch and advancing
// by step per call. A non-positive step is replaced with one nanosecond.
func NewDeterministicClockAt(epoch time.Time, step time.Duration) *DeterministicClock {
	if step <= 0 {
		step = time.Nanosecond
	}
	return &DeterministicClock{epoch: epoch.UTC(), step: step}
}

// Now returns the next instant in UTC.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.epoch.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Calls returns how many times Now has been called since the last Reset.
func (c *DeterministicClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock. The next call to Now() returns the epoch again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
