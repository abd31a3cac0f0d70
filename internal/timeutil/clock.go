// Package timeutil provides a testable abstraction over wall-clock time and
// the phase timers used to report run durations.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a manually controlled clock for testing.
//
// When Step is non-zero every call to Now advances the clock by Step before
// returning, which lets tests drive time-budgeted loops without sleeping.
type MockClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewMockClock creates a MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// SetStep configures the automatic advance applied on every Now call.
func (c *MockClock) SetStep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}

// Now returns the mock time, advancing it by the configured step.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Since returns the mock duration since t without stepping.
func (c *MockClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(t)
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set sets the clock to t.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// PhaseTimer accumulates elapsed time for one named phase of a run. Start and
// Stop may be called repeatedly; the elapsed time is the sum of all closed
// intervals. A PhaseTimer is not safe for concurrent use.
type PhaseTimer struct {
	clock   Clock
	started time.Time
	running bool
	elapsed time.Duration
}

// NewPhaseTimer returns a stopped timer reading from clock.
func NewPhaseTimer(clock Clock) *PhaseTimer {
	if clock == nil {
		clock = RealClock{}
	}
	return &PhaseTimer{clock: clock}
}

// Start opens a new interval. Starting a running timer is a no-op.
func (p *PhaseTimer) Start() {
	if p.running {
		return
	}
	p.started = p.clock.Now()
	p.running = true
}

// Stop closes the current interval and returns the total elapsed time.
func (p *PhaseTimer) Stop() time.Duration {
	if p.running {
		p.elapsed += p.clock.Now().Sub(p.started)
		p.running = false
	}
	return p.elapsed
}

// Elapsed returns the accumulated time, including the open interval.
func (p *PhaseTimer) Elapsed() time.Duration {
	if p.running {
		return p.elapsed + p.clock.Now().Sub(p.started)
	}
	return p.elapsed
}
