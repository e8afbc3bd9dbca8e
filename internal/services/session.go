package services

import "sync"

// session scopes the timer and watchers of one trip. Input tagged with a
// session that is done is dropped.
type session struct {
	// done is guarded by TripMonitor.mu
	done bool

	stopped chan struct{}

	mu     sync.Mutex
	closed bool
	stops  []func()
}

func newSession() *session {
	return &session{stopped: make(chan struct{})}
}

// addStop registers a release function. If the session is already closed,
// stop runs immediately.
func (s *session) addStop(stop func()) {
	if stop == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return
	}
	s.stops = append(s.stops, stop)
	s.mu.Unlock()
}

// close runs every registered stop function exactly once.
func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stops := s.stops
	s.stops = nil
	close(s.stopped)
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}
