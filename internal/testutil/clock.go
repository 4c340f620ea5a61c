package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant StepClock returns unless told otherwise.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a thread-safe es.Clock that advances by a fixed step on every
// call, so event timestamps are reproducible across runs.
//
// The first call to Now returns the start instant.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	calls int64
}

// NewStepClock creates a clock starting at Epoch with a one-second step.
func NewStepClock() *StepClock {
	return NewStepClockAt(Epoch, time.Second)
}

// NewStepClockAt creates a clock starting at start. A non-positive step
// freezes the clock.
func NewStepClockAt(start time.Time, step time.Duration) *StepClock {
	if step < 0 {
		step = 0
	}
	return &StepClock{start: start.UTC(), step: step}
}

// Now implements es.Clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.calls) * c.step)
	c.calls++
	return t
}

// Calls returns how many times Now was called.
func (c *StepClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock so the next Now returns the start instant again.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
