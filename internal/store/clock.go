package store

import (
	"sync/atomic"
	"time"
)

// Clock supplies write timestamps.
// Implementations must be safe for concurrent use by every session.
type Clock interface {
	Now() time.Time
}

// MonotonicClock stamps writes with wall-clock UTC time that never goes
// backwards within the process: each call returns max(now, last+1ns).
//
// This keeps created_at strictly increasing across sessions, so a refreshed
// item is never ordered before its previous write even if the system clock
// steps back.
type MonotonicClock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewMonotonicClock creates a clock reading time.Now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{now: time.Now}
}

// Now returns the next timestamp in UTC with no monotonic reading attached.
func (c *MonotonicClock) Now() time.Time {
	for {
		prev := c.last.Load()
		next := c.now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return time.Unix(0, next).UTC()
		}
	}
}

// timestampLayout is ISO-8601 UTC with a fixed-width fraction, so that
// lexical order of the stored text equals chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
