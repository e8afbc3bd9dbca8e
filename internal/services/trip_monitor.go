package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/clock"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/metrics"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

const (
	MinEtaMinutes = 5
	MaxEtaMinutes = 120

	defaultUserName = "User"
	storeTimeout    = 5 * time.Second
)

// MonitorConfig holds the tunables of a TripMonitor.
type MonitorConfig struct {
	CriticalBatteryPct  int
	TickInterval        time.Duration
	LocationTimeout     time.Duration
	LocationHistorySize int
	TrackingBaseURL     string
	NotifyTimeout       time.Duration
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CriticalBatteryPct:  10,
		TickInterval:        time.Second,
		LocationTimeout:     10 * time.Second,
		LocationHistorySize: 100,
		TrackingBaseURL:     "https://aura.app/track",
		NotifyTimeout:       15 * time.Second,
	}
}

// MonitorDeps are the collaborators of a TripMonitor. Locations, Power,
// Notifier, History and Metrics may be nil; the matching feature is then off.
type MonitorDeps struct {
	Clock     clock.Clock
	Locations LocationSource
	Power     PowerSource
	Notifier  NotificationSink
	History   HistoryRecorder
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// StatusListener receives the status projection after every state change.
// A nil projection means no trip is active. Listeners run serially, in version
// order. A listener may end the trip itself; the resulting update is delivered
// once the current one has reached every listener.
type StatusListener func(status *models.StatusProjection)

type listenerEntry struct {
	id int
	fn StatusListener
}

// TripMonitor owns the single active trip, its deadline timer and its
// location and battery watchers, and decides when to escalate.
type TripMonitor struct {
	cfg       MonitorConfig
	clock     clock.Clock
	locations LocationSource
	power     PowerSource
	history   HistoryRecorder
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu        sync.Mutex
	trip      *models.Trip
	session   *session
	starting  bool
	trail     *locationTrail
	listeners []listenerEntry
	nextID    int
	version   uint64

	// emitMu guards the pending projections. Listeners run without it.
	emitMu     sync.Mutex
	lastQueued uint64
	pending    []*models.StatusProjection
	emitting   bool

	out     *outbox
	records *serialWorker
}

func NewTripMonitor(cfg MonitorConfig, deps MonitorDeps) *TripMonitor {
	defaults := DefaultMonitorConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.LocationTimeout <= 0 {
		cfg.LocationTimeout = defaults.LocationTimeout
	}
	if cfg.LocationHistorySize <= 0 {
		cfg.LocationHistorySize = defaults.LocationHistorySize
	}
	if cfg.TrackingBaseURL == "" {
		cfg.TrackingBaseURL = defaults.TrackingBaseURL
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaults.NotifyTimeout
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := logging.OrDefault(deps.Logger)

	return &TripMonitor{
		cfg:       cfg,
		clock:     clk,
		locations: deps.Locations,
		power:     deps.Power,
		history:   deps.History,
		metrics:   deps.Metrics,
		logger:    logger,
		trail:     newLocationTrail(cfg.LocationHistorySize),
		out:       newOutbox(deps.Notifier, cfg.NotifyTimeout, deps.Metrics, logger),
		records:   newSerialWorker("history", logger),
	}
}

func validateTripConfig(cfg models.TripConfig) error {
	if strings.TrimSpace(cfg.Destination) == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidTripConfig)
	}
	if cfg.Guardian == nil {
		return fmt.Errorf("%w: guardian is required", ErrInvalidTripConfig)
	}
	if strings.TrimSpace(cfg.Guardian.Phone) == "" {
		return fmt.Errorf("%w: guardian phone is required", ErrInvalidTripConfig)
	}
	if cfg.EtaMinutes < MinEtaMinutes || cfg.EtaMinutes > MaxEtaMinutes {
		return fmt.Errorf("%w: ETA must be between %d and %d minutes, got %d",
			ErrInvalidTripConfig, MinEtaMinutes, MaxEtaMinutes, cfg.EtaMinutes)
	}
	return nil
}

// StartTrip validates cfg, captures a best-effort start location (bounded by
// the location timeout), notifies the guardian and starts the deadline timer
// and the location and battery watchers.
func (m *TripMonitor) StartTrip(ctx context.Context, cfg models.TripConfig) (*models.Trip, error) {
	m.mu.Lock()
	if m.trip != nil || m.starting {
		m.mu.Unlock()
		return nil, ErrDuplicateTrip
	}
	if err := validateTripConfig(cfg); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.starting = true
	m.mu.Unlock()

	startLocation := m.fetchStartLocation(ctx)

	userName := strings.TrimSpace(cfg.UserName)
	if userName == "" {
		userName = defaultUserName
	}

	m.mu.Lock()
	m.starting = false
	now := m.clock.Now()
	trip := &models.Trip{
		ID:                  uuid.New().String(),
		UserName:            userName,
		Destination:         strings.TrimSpace(cfg.Destination),
		EtaMinutes:          cfg.EtaMinutes,
		Guardian:            *cfg.Guardian,
		DeviceToken:         cfg.DeviceToken,
		StartTime:           now,
		ExpectedArrivalTime: now.Add(time.Duration(cfg.EtaMinutes) * time.Minute),
		StartLocation:       startLocation,
		CurrentLocation:     clonePosition(startLocation),
		BatteryLevel:        100,
		Status:              models.TripStatusActive,
	}
	sess := newSession()
	m.trip = trip
	m.session = sess
	m.trail.reset()
	m.out.enqueue(m.tripStartNotificationLocked())
	version, status := m.bumpLocked()
	started := trip.Clone()
	m.mu.Unlock()

	m.metrics.TripStarted()
	m.logger.Info("trip started",
		"trip_id", started.ID,
		"destination", started.Destination,
		"eta_minutes", started.EtaMinutes,
		"has_start_location", started.StartLocation != nil,
	)

	m.startMonitors(sess)
	m.publish(version, status)

	return started, nil
}

func (m *TripMonitor) fetchStartLocation(ctx context.Context) *models.Position {
	if m.locations == nil {
		m.logger.Warn("location source not available, trip starts without a location")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.LocationTimeout)
	defer cancel()

	type result struct {
		pos models.Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pos, err := m.locations.CurrentPosition(ctx)
		ch <- result{pos, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = fmt.Errorf("%w: %v", ErrPositionUnavailable, ctx.Err())
	}
	if r.err != nil {
		m.metrics.SourceFailed("location")
		m.logger.Warn("start location unavailable, continuing without it", "error", r.err)
		return nil
	}
	if r.pos.Timestamp.IsZero() {
		r.pos.Timestamp = m.clock.Now()
	}
	return &r.pos
}

// startMonitors wires the three input sources to sess. Each stop function is
// registered on the session, so a trip that ended meanwhile stops them at once.
func (m *TripMonitor) startMonitors(sess *session) {
	ticker := m.clock.NewTicker(m.cfg.TickInterval)
	sess.addStop(ticker.Stop)
	go m.runTimer(sess, ticker)

	if m.locations != nil {
		stop, err := m.locations.WatchPosition(
			func(p models.Position) { m.onPosition(sess, p) },
			func(err error) { m.onPositionError(sess, err) },
		)
		if err != nil {
			m.metrics.SourceFailed("location")
			m.logger.Warn("location tracking unavailable", "error", err)
		} else {
			sess.addStop(stop)
		}
	}

	if m.power != nil {
		stop, err := m.power.WatchBattery(func(r models.BatteryReading) { m.onBattery(sess, r) })
		if err != nil {
			m.metrics.SourceFailed("battery")
			m.logger.Warn("battery monitoring unavailable", "error", err)
		} else {
			sess.addStop(stop)
		}
	} else {
		m.logger.Warn("power source not available, battery escalation disabled")
	}
}

func (m *TripMonitor) runTimer(sess *session, ticker clock.Ticker) {
	for {
		select {
		case <-sess.stopped:
			return
		case <-ticker.C():
			m.onTick(sess)
		}
	}
}

// acceptingLocked reports whether input tagged with sess may still mutate state.
func (m *TripMonitor) acceptingLocked(sess *session) bool {
	return m.trip != nil && m.session == sess && !sess.done
}

func (m *TripMonitor) onTick(sess *session) {
	m.mu.Lock()
	if !m.acceptingLocked(sess) {
		m.mu.Unlock()
		return
	}
	if !m.clock.Now().Before(m.trip.ExpectedArrivalTime) && !m.trip.SafeArrival {
		m.escalateLocked(models.EscalationETAExpired)
	}
	version, status := m.bumpLocked()
	m.mu.Unlock()

	m.publish(version, status)
}

func (m *TripMonitor) onPosition(sess *session, p models.Position) {
	m.mu.Lock()
	if !m.acceptingLocked(sess) {
		m.mu.Unlock()
		return
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = m.clock.Now()
	}
	if prev := m.trip.CurrentLocation; prev != nil && p.Timestamp.Before(prev.Timestamp) {
		p.Timestamp = prev.Timestamp
	}
	m.trip.CurrentLocation = &p
	m.trail.push(p)
	version, status := m.bumpLocked()
	m.mu.Unlock()

	m.publish(version, status)
}

func (m *TripMonitor) onPositionError(sess *session, err error) {
	m.mu.Lock()
	accepting := m.acceptingLocked(sess)
	m.mu.Unlock()
	if !accepting {
		return
	}
	m.metrics.SourceFailed("location")
	m.logger.Warn("location tracking error", "error", err)
}

func (m *TripMonitor) onBattery(sess *session, r models.BatteryReading) {
	m.mu.Lock()
	if !m.acceptingLocked(sess) {
		m.mu.Unlock()
		return
	}
	pct := r.Percent()
	m.trip.BatteryLevel = int(math.Round(pct))

	if pct <= float64(m.cfg.CriticalBatteryPct) {
		m.escalateLocked(models.EscalationCriticalBattery)
	}
	version, status := m.bumpLocked()
	m.mu.Unlock()

	m.publish(version, status)
}

// escalateLocked is the check-and-set guarding the SOS: at most one is queued
// per trip. The SOS is queued under the lock so it always precedes the
// safe-arrival message of the same trip.
func (m *TripMonitor) escalateLocked(kind models.EscalationType) {
	trip := m.trip
	if trip.Escalated {
		return
	}
	now := m.clock.Now()
	trip.Escalated = true
	trip.Status = models.TripStatusEscalated
	trip.EscalationType = kind
	trip.EscalationTime = &now

	m.recordLocked(trip)
	m.metrics.Escalated(string(kind))
	m.logger.Error("EMERGENCY: trip escalated",
		"trip_id", trip.ID,
		"escalation_type", kind,
		"battery_level", trip.BatteryLevel,
		"has_location", trip.CurrentLocation != nil,
	)

	m.out.enqueue(m.sosNotificationLocked(kind))
}

// ConfirmSafeArrival completes the active trip, stops its monitors and tells
// the guardian. An SOS that already fired is not retracted.
func (m *TripMonitor) ConfirmSafeArrival() (*models.Trip, error) {
	m.mu.Lock()
	if m.trip == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveTrip
	}
	trip := m.trip
	now := m.clock.Now()
	trip.SafeArrival = true
	trip.Status = models.TripStatusCompleted
	trip.CompletionTime = &now

	m.out.enqueue(m.safeArrivalNotificationLocked())
	m.recordLocked(trip)
	sess := m.detachLocked()
	version, status := m.bumpFinalLocked(trip)
	m.mu.Unlock()

	sess.close()
	m.metrics.TripFinished(string(models.TripStatusCompleted))
	m.logger.Info("trip completed safely", "trip_id", trip.ID, "escalated", trip.Escalated)

	m.publish(version, status)
	return trip.Clone(), nil
}

// CancelTrip ends the active trip silently. From the escalated state it only
// closes the record; the SOS stays sent.
func (m *TripMonitor) CancelTrip() (*models.Trip, error) {
	m.mu.Lock()
	if m.trip == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveTrip
	}
	trip := m.trip
	now := m.clock.Now()
	trip.Status = models.TripStatusCancelled
	trip.CancelTime = &now

	m.recordLocked(trip)
	sess := m.detachLocked()
	version, status := m.bumpFinalLocked(trip)
	m.mu.Unlock()

	sess.close()
	m.metrics.TripFinished(string(models.TripStatusCancelled))
	m.logger.Info("trip cancelled", "trip_id", trip.ID, "escalated", trip.Escalated)

	m.publish(version, status)
	return trip.Clone(), nil
}

// detachLocked stops accepting input for the current session and clears the
// active trip. The caller closes the returned session after unlocking.
func (m *TripMonitor) detachLocked() *session {
	sess := m.session
	sess.done = true
	m.trip = nil
	m.session = nil
	m.trail.reset()
	return sess
}

// recordLocked queues a snapshot of trip for the history log. Writes run in
// queue order off the lock, so an escalated record never overwrites the
// completed one. Failures are logged only.
func (m *TripMonitor) recordLocked(trip *models.Trip) {
	if m.history == nil {
		return
	}
	snapshot := trip.Clone()
	if !m.records.submit(func() { m.saveHistory(snapshot) }) {
		m.logger.Warn("history write dropped, monitor closed", "trip_id", snapshot.ID)
	}
}

func (m *TripMonitor) saveHistory(trip *models.Trip) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.history.Record(ctx, trip); err != nil {
		m.logger.Error("failed to save trip to history", "trip_id", trip.ID, "error", err)
	}
}

func (m *TripMonitor) bumpLocked() (uint64, *models.StatusProjection) {
	m.version++
	return m.version, models.NewStatusProjection(m.trip, m.clock.Now())
}

// bumpFinalLocked publishes the projection of a trip that just left monitoring.
func (m *TripMonitor) bumpFinalLocked(trip *models.Trip) (uint64, *models.StatusProjection) {
	m.version++
	return m.version, models.NewStatusProjection(trip, m.clock.Now())
}

// GetTripStatus returns the time-based projection of the active trip, or nil.
func (m *TripMonitor) GetTripStatus() *models.StatusProjection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.NewStatusProjection(m.trip, m.clock.Now())
}

// GetActiveTrip returns a copy of the active trip, or nil.
func (m *TripMonitor) GetActiveTrip() *models.Trip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trip.Clone()
}

func (m *TripMonitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trip != nil
}

// LocationTrail returns the retained positions of the active trip, oldest first.
func (m *TripMonitor) LocationTrail() []models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trip == nil {
		return nil
	}
	return m.trail.snapshot()
}

// History returns the recorded trips, newest first, including writes still
// queued when it was called.
func (m *TripMonitor) History(ctx context.Context) ([]models.Trip, error) {
	if m.history == nil {
		return []models.Trip{}, nil
	}
	m.records.flush()
	return m.history.List(ctx)
}

func (m *TripMonitor) ClearHistory(ctx context.Context) error {
	if m.history == nil {
		return nil
	}
	m.records.flush()
	return m.history.Clear(ctx)
}

// Subscribe registers fn for status updates. The returned function removes it
// and may be called more than once.
func (m *TripMonitor) Subscribe(fn StatusListener) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// publish delivers status to the listeners unless a newer version was already
// queued. The first caller drains the queue; a publish made meanwhile, from
// another goroutine or from a listener, only appends to it.
func (m *TripMonitor) publish(version uint64, status *models.StatusProjection) {
	m.emitMu.Lock()
	if version <= m.lastQueued {
		m.emitMu.Unlock()
		return
	}
	m.lastQueued = version
	m.pending = append(m.pending, status)
	if m.emitting {
		m.emitMu.Unlock()
		return
	}
	m.emitting = true
	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending[0] = nil
		m.pending = m.pending[1:]
		m.emitMu.Unlock()

		m.emit(next)

		m.emitMu.Lock()
	}
	m.emitting = false
	m.emitMu.Unlock()
}

func (m *TripMonitor) emit(status *models.StatusProjection) {
	m.mu.Lock()
	listeners := make([]listenerEntry, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		m.invoke(l, cloneProjection(status))
	}
}

func (m *TripMonitor) invoke(l listenerEntry, status *models.StatusProjection) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.ListenerPanicked()
			m.logger.Error("trip listener panicked", "listener_id", l.id, "panic", r)
		}
	}()
	l.fn(status)
}

// Flush blocks until every queued guardian notification and history write
// has been attempted.
func (m *TripMonitor) Flush() {
	m.out.flush()
	m.records.flush()
}

// Close stops the monitors of an active trip without recording it, waits for
// queued notifications and history writes and releases their workers. The monitor must not
// be used afterwards.
func (m *TripMonitor) Close() {
	m.mu.Lock()
	var sess *session
	if m.trip != nil {
		m.logger.Warn("closing monitor with an active trip", "trip_id", m.trip.ID)
		sess = m.detachLocked()
	}
	m.mu.Unlock()

	if sess != nil {
		sess.close()
		m.metrics.TripFinished("abandoned")
	}
	m.out.close()
	m.records.close()
}

func cloneProjection(p *models.StatusProjection) *models.StatusProjection {
	if p == nil {
		return nil
	}
	c := *p
	c.Trip = *p.Trip.Clone()
	return &c
}

func clonePosition(p *models.Position) *models.Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
