package clock

import "time"

// Clock provides time operations that can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// New creates a new RealClock.
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Fixed is a Clock pinned to a settable instant, for tests.
type Fixed struct {
	T time.Time
}

func (c *Fixed) Now() time.Time { return c.T }

// Advance moves the fixed clock forward.
func (c *Fixed) Advance(d time.Duration) { c.T = c.T.Add(d) }
