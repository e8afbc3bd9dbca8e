package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/metrics"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

func (m *TripMonitor) tripStartNotificationLocked() *models.Notification {
	trip := m.trip
	n := m.baseNotificationLocked(models.NotificationTripStart)
	n.Message = fmt.Sprintf("Aura: %s has started a trip. ETA: %d minutes. Live tracking link: %s",
		trip.UserName, trip.EtaMinutes, n.TrackingLink)
	return n
}

func (m *TripMonitor) safeArrivalNotificationLocked() *models.Notification {
	n := m.baseNotificationLocked(models.NotificationSafeArrival)
	n.Message = fmt.Sprintf("Aura: %s has arrived safely at their destination.", m.trip.UserName)
	return n
}

func (m *TripMonitor) sosNotificationLocked(kind models.EscalationType) *models.Notification {
	trip := m.trip
	n := m.baseNotificationLocked(models.NotificationSOS)
	n.Priority = models.PriorityHigh
	battery := trip.BatteryLevel
	n.BatteryLevel = &battery

	switch kind {
	case models.EscalationCriticalBattery:
		n.Reason = "Critical Battery"
		n.Message = fmt.Sprintf("%s's phone battery dropped to %d%% during trip.", trip.UserName, trip.BatteryLevel)
	default:
		n.Reason = "ETA Expired"
		n.Message = fmt.Sprintf("%s's trip timer expired without safe arrival confirmation.", trip.UserName)
	}
	return n
}

func (m *TripMonitor) baseNotificationLocked(kind models.NotificationType) *models.Notification {
	trip := m.trip
	return &models.Notification{
		Type:         kind,
		TripID:       trip.ID,
		UserName:     trip.UserName,
		Destination:  trip.Destination,
		Guardian:     trip.Guardian,
		Priority:     models.PriorityNormal,
		Location:     clonePosition(trip.CurrentLocation),
		Timestamp:    m.clock.Now(),
		TrackingLink: trackingLink(m.cfg.TrackingBaseURL, trip.ID, trip.CurrentLocation),
		DeviceToken:  trip.DeviceToken,
	}
}

// trackingLink builds "<base>/<id>?lat=..&lng=.." or "<base>/unknown" when
// no location is known.
func trackingLink(base, tripID string, pos *models.Position) string {
	base = strings.TrimRight(base, "/")
	if pos == nil {
		return base + "/unknown"
	}
	return fmt.Sprintf("%s/%s?lat=%s&lng=%s", base, tripID,
		strconv.FormatFloat(pos.Latitude, 'f', -1, 64),
		strconv.FormatFloat(pos.Longitude, 'f', -1, 64))
}

// outbox delivers notifications in order on a single worker so a slow or
// failing sink never blocks the monitor.
type outbox struct {
	sink    NotificationSink
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	worker  *serialWorker
}

func newOutbox(sink NotificationSink, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *outbox {
	return &outbox{
		sink:    sink,
		timeout: timeout,
		metrics: m,
		logger:  logger,
		worker:  newSerialWorker("notifications", logger),
	}
}

func (o *outbox) enqueue(n *models.Notification) {
	if n == nil {
		return
	}
	if !o.worker.submit(func() { o.deliver(n) }) {
		o.logger.Warn("notification dropped, monitor closed", "type", n.Type, "trip_id", n.TripID)
	}
}

func (o *outbox) deliver(n *models.Notification) {
	if o.sink == nil {
		o.logger.Info("no notifier configured, skipping notification", "type", n.Type, "trip_id", n.TripID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	err := o.send(ctx, n)
	o.metrics.NotificationSent(string(n.Type), err)
	if err != nil {
		o.logger.Error("failed to notify guardian",
			"type", n.Type,
			"trip_id", n.TripID,
			"error", err,
		)
		return
	}
	o.logger.Info("guardian notified", "type", n.Type, "trip_id", n.TripID)
}

func (o *outbox) send(ctx context.Context, n *models.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panicked: %v", r)
		}
	}()
	return o.sink.Send(ctx, *n)
}

// flush waits for every queued notification to be attempted.
func (o *outbox) flush() {
	o.worker.flush()
}

func (o *outbox) close() {
	o.worker.close()
}
