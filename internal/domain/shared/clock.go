package shared

import (
	"sync"
	"time"
)

// Clock abstracts the wall clock so schedules and "today" can be pinned in tests
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the same instant until Set is called
type FixedClock struct {
	mu sync.RWMutex
	t  time.Time
}

// NewFixedClock creates a clock pinned to t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the pinned time
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Set moves the clock
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Date builds a calendar date at midnight UTC.
// Billing dates are stored as DATE values so the time part is always zero.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar date of t as observed in loc, as a midnight UTC value
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date(y, m, d)
}
