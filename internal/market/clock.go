package market

import (
	"sync"
	"time"
)

// Clock abstracts time so simulation mode can fast-forward between rounds
// while live mode waits on the wall clock.
type Clock interface {
	Now() time.Time
	// Until returns a channel that delivers once t has been reached. A
	// simulated clock advances itself to t and delivers immediately.
	Until(t time.Time) <-chan time.Time
}

// WallClock is the real-time clock used by live markets.
type WallClock struct{}

// Now implements Clock.
func (WallClock) Now() time.Time { return time.Now() }

// Until implements Clock.
func (WallClock) Until(t time.Time) <-chan time.Time {
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	return time.After(d)
}

// SimClock is a logical clock for simulation: waiting for an instant jumps
// straight to it. Multiple markets may share one SimClock; Now never moves
// backwards.
type SimClock struct {
	mu    sync.Mutex
	now   time.Time
	grace time.Duration
}

// NewSimClock creates a SimClock positioned at start.
func NewSimClock(start time.Time) *SimClock {
	return &SimClock{now: start}
}

// WithGrace makes every Until deliver after the given real-time delay instead
// of immediately. Simulation runs with concurrent participants need this
// window so bus deliveries land inside the round they answer.
func (c *SimClock) WithGrace(d time.Duration) *SimClock {
	c.grace = d
	return c
}

// Now implements Clock.
func (c *SimClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Until implements Clock: the returned channel delivers immediately (or
// after the grace delay) and the clock advances to t at delivery, so Now
// still reads the earlier instant while a grace window is pending.
func (c *SimClock) Until(t time.Time) <-chan time.Time {
	ch := make(chan time.Time, 1)
	deliver := func() {
		c.mu.Lock()
		if t.After(c.now) {
			c.now = t
		}
		now := c.now
		c.mu.Unlock()
		ch <- now
	}
	if c.grace <= 0 {
		deliver()
		return ch
	}
	go func() {
		time.Sleep(c.grace)
		deliver()
	}()
	return ch
}

// Advance moves the clock forward to t without waiting on it.
func (c *SimClock) Advance(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}
