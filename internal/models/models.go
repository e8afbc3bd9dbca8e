package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TripStatus is the lifecycle state of a trip
type TripStatus string

const (
	TripStatusActive    TripStatus = "active"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
	TripStatusEscalated TripStatus = "escalated"
)

// EscalationType records which safety precondition fired the SOS
type EscalationType string

const (
	EscalationETAExpired      EscalationType = "eta_expired"
	EscalationCriticalBattery EscalationType = "critical_battery"
)

// Guardian is the emergency contact attached to a trip
type Guardian struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (g Guardian) Value() (driver.Value, error) {
	return json.Marshal(g)
}

func (g *Guardian) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*g = Guardian{}
		return nil
	case []byte:
		return json.Unmarshal(v, g)
	case string:
		return json.Unmarshal([]byte(v), g)
	}
	return fmt.Errorf("cannot scan %T into Guardian", value)
}

// Position is a single location fix
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // meters
	Timestamp time.Time `json:"timestamp"`
}

func (p Position) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Position) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return fmt.Errorf("cannot scan %T into Position", value)
}

// BatteryReading is a power-source sample; Level is a fraction in [0, 1]
type BatteryReading struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

// Percent converts the fractional level to a percentage clamped to [0, 100].
func (b BatteryReading) Percent() float64 {
	pct := b.Level * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// TripConfig is the caller input for starting a trip
type TripConfig struct {
	UserName    string    `json:"user_name"`
	Destination string    `json:"destination"`
	EtaMinutes  int       `json:"eta_minutes"`
	Guardian    *Guardian `json:"guardian"`
	DeviceToken string    `json:"device_token,omitempty"` // FCM token of the traveller's phone
}

// Trip is a single monitored journey
type Trip struct {
	ID                  string         `json:"id"`
	UserName            string         `json:"user_name"`
	Destination         string         `json:"destination"`
	EtaMinutes          int            `json:"eta_minutes"`
	Guardian            Guardian       `json:"guardian"`
	DeviceToken         string         `json:"device_token,omitempty"`
	StartTime           time.Time      `json:"start_time"`
	ExpectedArrivalTime time.Time      `json:"expected_arrival_time"`
	StartLocation       *Position      `json:"start_location"`
	CurrentLocation     *Position      `json:"current_location"`
	BatteryLevel        int            `json:"battery_level"`
	Status              TripStatus     `json:"status"`
	Escalated           bool           `json:"escalated"`
	EscalationType      EscalationType `json:"escalation_type,omitempty"`
	SafeArrival         bool           `json:"safe_arrival"`
	EscalationTime      *time.Time     `json:"escalation_time,omitempty"`
	CompletionTime      *time.Time     `json:"completion_time,omitempty"`
	CancelTime          *time.Time     `json:"cancel_time,omitempty"`
}

// Clone returns a deep copy safe to hand outside the monitor's lock.
func (t *Trip) Clone() *Trip {
	if t == nil {
		return nil
	}
	c := *t
	c.StartLocation = clonePosition(t.StartLocation)
	c.CurrentLocation = clonePosition(t.CurrentLocation)
	c.EscalationTime = cloneTime(t.EscalationTime)
	c.CompletionTime = cloneTime(t.CompletionTime)
	c.CancelTime = cloneTime(t.CancelTime)
	return &c
}

func clonePosition(p *Position) *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// StatusProjection is the read model served to polling and subscribed consumers
type StatusProjection struct {
	Trip
	ElapsedTime   time.Duration `json:"-"`
	RemainingTime time.Duration `json:"-"`
	ElapsedMs     int64         `json:"elapsed_time_ms"`
	RemainingMs   int64         `json:"remaining_time_ms"`
	Progress      float64       `json:"progress"` // percent, capped at 100
	IsExpired     bool          `json:"is_expired"`
}

// NewStatusProjection derives the time-based view of trip at instant now.
// It has no side effects.
func NewStatusProjection(trip *Trip, now time.Time) *StatusProjection {
	if trip == nil {
		return nil
	}
	elapsed := now.Sub(trip.StartTime)
	remaining := trip.ExpectedArrivalTime.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	progress := 0.0
	if budget := time.Duration(trip.EtaMinutes) * time.Minute; budget > 0 {
		progress = float64(elapsed) / float64(budget) * 100
	}
	if progress > 100 {
		progress = 100
	}

	return &StatusProjection{
		Trip:          *trip.Clone(),
		ElapsedTime:   elapsed,
		RemainingTime: remaining,
		ElapsedMs:     elapsed.Milliseconds(),
		RemainingMs:   remaining.Milliseconds(),
		Progress:      progress,
		IsExpired:     remaining <= 0,
	}
}

// NotificationType identifies the guardian message being sent
type NotificationType string

const (
	NotificationTripStart   NotificationType = "trip_start"
	NotificationSafeArrival NotificationType = "safe_arrival"
	NotificationSOS         NotificationType = "SOS"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is the payload handed to the notification sink
type Notification struct {
	Type         NotificationType `json:"type"`
	TripID       string           `json:"trip_id"`
	UserName     string           `json:"user_name"`
	Destination  string           `json:"destination"`
	Guardian     Guardian         `json:"guardian"`
	Reason       string           `json:"reason,omitempty"`
	Message      string           `json:"message"`
	Priority     Priority         `json:"priority,omitempty"`
	Location     *Position        `json:"location,omitempty"`
	BatteryLevel *int             `json:"battery_level,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	TrackingLink string           `json:"tracking_link,omitempty"`
	DeviceToken  string           `json:"-"`
}
