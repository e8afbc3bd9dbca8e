// Package metrics provides Prometheus metrics for trip monitoring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// Trip metrics
	TripsStarted   prometheus.Counter
	TripsFinished  *prometheus.CounterVec
	Escalations    *prometheus.CounterVec
	ActiveTrip     prometheus.Gauge
	Notifications  *prometheus.CounterVec
	ListenerPanics prometheus.Counter
	SourceErrors   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripguard_trips_started_total",
			Help: "Total number of trips started",
		}),
		TripsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripguard_trips_finished_total",
			Help: "Trips that left monitoring, by final status",
		}, []string{"status"}),
		Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripguard_escalations_total",
			Help: "SOS escalations fired, by escalation type",
		}, []string{"type"}),
		ActiveTrip: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripguard_active_trip",
			Help: "1 while a trip is being monitored",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripguard_notifications_total",
			Help: "Guardian notifications handed to the sink, by type and result",
		}, []string{"type", "result"}),
		ListenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripguard_listener_panics_total",
			Help: "Subscriber callbacks that panicked",
		}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripguard_source_errors_total",
			Help: "Location and battery source failures",
		}, []string{"source"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripguard_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tripguard_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	// Register all metrics with the custom registry
	registry.MustRegister(
		m.TripsStarted,
		m.TripsFinished,
		m.Escalations,
		m.ActiveTrip,
		m.Notifications,
		m.ListenerPanics,
		m.SourceErrors,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

func (m *Metrics) TripStarted() {
	if m == nil {
		return
	}
	m.TripsStarted.Inc()
	m.ActiveTrip.Set(1)
}

func (m *Metrics) TripFinished(status string) {
	if m == nil {
		return
	}
	m.TripsFinished.WithLabelValues(status).Inc()
	m.ActiveTrip.Set(0)
}

func (m *Metrics) Escalated(escalationType string) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(escalationType).Inc()
}

func (m *Metrics) NotificationSent(notificationType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Notifications.WithLabelValues(notificationType, result).Inc()
}

func (m *Metrics) ListenerPanicked() {
	if m == nil {
		return
	}
	m.ListenerPanics.Inc()
}

func (m *Metrics) SourceFailed(source string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(source).Inc()
}
