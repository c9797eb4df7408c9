package testutil

import (
	"sync"
	"time"
)

// MockClock implements cache.Clock with manually advanced time.
type MockClock struct {
	current time.Time
	mu      sync.Mutex
}

// NewMockClock creates a MockClock starting at now.
func NewMockClock(now time.Time) *MockClock {
	return &MockClock{current: now}
}

// Now returns the configured current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// Set moves the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}
