package clock

import (
	"sync"
	"time"
)

// Clock is the time source services read "now" from.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// New returns the wall clock.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

// Managed is a hand-driven clock for tests.
type Managed struct {
	mu  sync.Mutex
	now time.Time
}

func NewManaged(start time.Time) *Managed {
	return &Managed{now: start}
}

func (c *Managed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// WarpForward advances the clock and returns the new time.
func (c *Managed) WarpForward(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
