package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manual time source. Rate limit windows, ledger retention and
// event categorization all read time through an injected func, so tests
// drive them by moving this clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

// Now returns the clock's time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Current is Now, for call sites that read better without implying progress.
func (c *Clock) Current() time.Time {
	return c.Now()
}

// NowFunc returns Now for injection. A nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// AdvanceDays moves the clock forward by whole calendar days.
func (c *Clock) AdvanceDays(days int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, days)
	return c.now
}

// NextMonth jumps to midnight on the first day of the following calendar
// month in the clock's location.
func (c *Clock) NextMonth() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	year, month, _ := c.now.Date()
	c.now = time.Date(year, month+1, 1, 0, 0, 0, 0, c.now.Location())
	return c.now
}
