// Package clock lets the scheduler read time through an interface so tests can
// step it by hand.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type wall struct{}

func (wall) Now() time.Time { return time.Now() }

// Real returns the wall clock.
func Real() Clock { return wall{} }

// Manual is a clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
