package testfixtures

import (
	"sync"
	"time"
)

// referenceTime anchors fixture timestamps.
var referenceTime = time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the instant fixture clocks start at by default.
func ReferenceTime() time.Time {
	return referenceTime
}

// Clock is a time source for tests. Every reading advances it by Step, so
// durations measured between two readings are predictable.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewClock returns a clock starting at start, or at ReferenceTime when start
// is the zero value.
func NewClock(start time.Time, step time.Duration) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start, step: step}
}

// Now returns the current reading and advances the clock by its step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// Peek returns the next reading without advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
