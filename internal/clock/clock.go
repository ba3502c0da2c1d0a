// Package clock abstracts the wall clock so session timing and point
// calculation can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock in UTC.
type Real struct{}

// New returns the system clock.
func New() Real { return Real{} }

// Now returns the current UTC time truncated to microseconds, the
// precision every supported store keeps.
func (Real) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// Mock is a settable clock for tests.  It is safe for concurrent use.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

var _ Clock = (*Mock)(nil)

// NewMock returns a Mock set to t.
func NewMock(t time.Time) *Mock { return &Mock{now: t.UTC()} }

// Now returns the mocked time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set moves the clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}
