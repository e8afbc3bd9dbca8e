package services

import (
	"context"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

// LocationSource delivers position fixes for the traveller's device.
type LocationSource interface {
	// CurrentPosition returns a single fix, honouring ctx for timeout.
	CurrentPosition(ctx context.Context) (models.Position, error)
	// WatchPosition streams fixes until the returned stop function is called.
	WatchPosition(onUpdate func(models.Position), onError func(error)) (stop func(), err error)
}

// PowerSource delivers battery level changes.
type PowerSource interface {
	WatchBattery(onChange func(models.BatteryReading)) (stop func(), err error)
}

// NotificationSink delivers guardian notifications. Delivery is best effort.
type NotificationSink interface {
	Send(ctx context.Context, n models.Notification) error
}

// HistoryRecorder persists trips that reach a terminal or escalated state.
type HistoryRecorder interface {
	Record(ctx context.Context, trip *models.Trip) error
	List(ctx context.Context) ([]models.Trip, error)
	Clear(ctx context.Context) error
}
