package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/clock"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/database"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/history"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/metrics"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

var testStart = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

// ──────────────────────────────────────────────
// MOCK NOTIFICATION SINK
// ──────────────────────────────────────────────

type MockNotifier struct {
	mu   sync.Mutex
	sent []models.Notification

	SendCallCount int32
	SendError     error
}

func (m *MockNotifier) Send(ctx context.Context, n models.Notification) error {
	atomic.AddInt32(&m.SendCallCount, 1)
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
	return m.SendError
}

func (m *MockNotifier) Sent() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockNotifier) OfType(kind models.NotificationType) []models.Notification {
	var out []models.Notification
	for _, n := range m.Sent() {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// MOCK LOCATION SOURCE
// ──────────────────────────────────────────────

// MockLocationSource fails or blocks on demand.
type MockLocationSource struct {
	CurrentError error
	WatchError   error
	// Block, when set, makes CurrentPosition ignore ctx and wait on it
	Block chan struct{}

	StopCallCount int32
}

func (m *MockLocationSource) CurrentPosition(ctx context.Context) (models.Position, error) {
	if m.Block != nil {
		<-m.Block
	}
	if m.CurrentError != nil {
		return models.Position{}, m.CurrentError
	}
	return models.Position{Latitude: 1, Longitude: 2}, nil
}

func (m *MockLocationSource) WatchPosition(onUpdate func(models.Position), onError func(error)) (func(), error) {
	if m.WatchError != nil {
		return nil, m.WatchError
	}
	return func() { atomic.AddInt32(&m.StopCallCount, 1) }, nil
}

var errPermissionDenied = errors.New("location permission denied")

// ──────────────────────────────────────────────
// MOCK HISTORY RECORDER
// ──────────────────────────────────────────────

// SlowRecorder holds every Record call until Release is closed.
type SlowRecorder struct {
	Release chan struct{}

	mu       sync.Mutex
	recorded []models.Trip
}

func (r *SlowRecorder) Record(ctx context.Context, trip *models.Trip) error {
	<-r.Release
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, *trip.Clone())
	return nil
}

func (r *SlowRecorder) List(ctx context.Context) ([]models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Trip, len(r.recorded))
	copy(out, r.recorded)
	return out, nil
}

func (r *SlowRecorder) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = nil
	return nil
}

// ──────────────────────────────────────────────
// HARNESS
// ──────────────────────────────────────────────

type harness struct {
	clock    *clock.MockClock
	feed     *DeviceFeed
	notifier *MockNotifier
	history  *history.Log
	metrics  *metrics.Metrics
	monitor  *TripMonitor
}

func newHarness(t *testing.T, opts ...func(*MonitorConfig, *MonitorDeps)) *harness {
	t.Helper()
	mc := clock.NewMockClock(testStart)
	logger := logging.NewWithWriter(io.Discard, "DEBUG")
	h := &harness{
		clock:    mc,
		feed:     NewDeviceFeed(mc, 5*time.Second),
		notifier: &MockNotifier{},
		history:  history.NewLog(database.NewMemoryStore(), 50, nil, logger),
		metrics:  metrics.New(),
	}

	cfg := DefaultMonitorConfig()
	cfg.LocationTimeout = 50 * time.Millisecond
	cfg.TrackingBaseURL = "https://aura.test/track/"
	deps := MonitorDeps{
		Clock:     mc,
		Locations: h.feed,
		Power:     h.feed,
		Notifier:  h.notifier,
		History:   h.history,
		Metrics:   h.metrics,
		Logger:    logger,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	h.monitor = NewTripMonitor(cfg, deps)
	t.Cleanup(h.monitor.Close)
	return h
}

func homeTrip() models.TripConfig {
	return models.TripConfig{
		UserName:    "Alex",
		Destination: "Home",
		EtaMinutes:  10,
		Guardian:    &models.Guardian{Name: "Sam", Phone: "555-1111"},
	}
}
