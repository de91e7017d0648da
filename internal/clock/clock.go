// Package clock supplies the current instant and the calendar boundaries
// used to scope daily quota windows.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by the wall clock.
func System() Clock {
	return systemClock{}
}

// Manual is a Clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock frozen at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the frozen instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Calendar computes day boundaries in a fixed reference time zone.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// NewCalendar creates a Calendar. A nil clock means the system clock and a
// nil location means time.Local.
func NewCalendar(c Clock, loc *time.Location) *Calendar {
	if c == nil {
		c = System()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{clock: c, loc: loc}
}

// Now returns the current instant in the reference time zone.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// StartOfToday returns midnight of the current day in the reference zone.
func (c *Calendar) StartOfToday() time.Time {
	return StartOfDay(c.clock.Now(), c.loc)
}

// Location returns the reference time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// StartOfDay returns midnight of t's calendar day in loc.
// On days where midnight does not exist (DST gaps) time.Date normalizes
// to the first valid instant of the day.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
