package services

import "errors"

var (
	// ErrInvalidTripConfig is returned when StartTrip input fails validation.
	// The trip is never created.
	ErrInvalidTripConfig = errors.New("invalid trip config")

	// ErrDuplicateTrip is returned when StartTrip is called while a trip is active.
	ErrDuplicateTrip = errors.New("a trip is already active")

	// ErrNoActiveTrip is returned when confirming or cancelling without an active trip.
	ErrNoActiveTrip = errors.New("no active trip")

	// ErrPositionUnavailable is returned when no position fix arrives in time.
	ErrPositionUnavailable = errors.New("position unavailable")
)
