// Package clock provides time abstraction for testing and production use.
// It enables deterministic testing of the trip deadline timer by allowing
// injection of a mock clock whose tickers fire only when time is advanced.
package clock

import (
	"sync"
	"time"
)

// Clock provides an abstraction for time operations.
// Use RealClock in production and MockClock in tests.
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// NewTicker returns a ticker delivering the time every period d
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the monitor depends on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock using actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// NewTicker wraps time.NewTicker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// MockClock implements Clock and provides a controllable, thread-safe time for tests.
// Tickers created from a MockClock fire only from Advance or Set.
type MockClock struct {
	currentTime time.Time
	tickers     map[*mockTicker]struct{}
	mu          sync.Mutex
}

// NewMockClock creates a new MockClock set to the specified time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{
		currentTime: t,
		tickers:     make(map[*mockTicker]struct{}),
	}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// NewTicker creates a ticker whose first tick is due one period from now.
func (m *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTicker{
		clock:  m,
		c:      make(chan time.Time, 1),
		period: d,
		next:   m.currentTime.Add(d),
	}
	m.tickers[t] = struct{}{}
	return t
}

// Set changes the mock clock's current time and fires due tickers.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
	m.fireLocked()
}

// Advance moves the mock clock by the specified duration and fires due tickers.
// As with time.Ticker, a receiver that falls behind sees a single pending tick.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
	m.fireLocked()
}

// ActiveTickers reports how many tickers have been created and not stopped.
func (m *MockClock) ActiveTickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

func (m *MockClock) fireLocked() {
	for t := range m.tickers {
		if m.currentTime.Before(t.next) {
			continue
		}
		select {
		case t.c <- m.currentTime:
		default:
		}
		for !m.currentTime.Before(t.next) {
			t.next = t.next.Add(t.period)
		}
	}
}

type mockTicker struct {
	clock  *MockClock
	c      chan time.Time
	period time.Duration
	next   time.Time
}

func (t *mockTicker) C() <-chan time.Time { return t.c }

func (t *mockTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	delete(t.clock.tickers, t)
}
