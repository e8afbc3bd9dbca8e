// Package history keeps the bounded, most-recent-first log of finished trips.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

// Key is the store key holding the JSON-encoded log.
const Key = "trip_history"

const DefaultLimit = 50

// Store is the persistent key/value collaborator.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Archiver receives every recorded trip for long-term storage.
type Archiver interface {
	ArchiveTrip(ctx context.Context, trip *models.Trip) error
}

type Log struct {
	store    Store
	archiver Archiver
	limit    int
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewLog builds a log over store. archiver may be nil.
func NewLog(store Store, limit int, archiver Archiver, logger *slog.Logger) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{
		store:    store,
		archiver: archiver,
		limit:    limit,
		logger:   logging.OrDefault(logger),
	}
}

// Record replaces the entry with the same trip id, or prepends a new one,
// then truncates the log to its limit.
func (l *Log) Record(ctx context.Context, trip *models.Trip) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	trips, err := l.load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range trips {
		if trips[i].ID == trip.ID {
			trips[i] = *trip.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		trips = append([]models.Trip{*trip.Clone()}, trips...)
	}
	if len(trips) > l.limit {
		trips = trips[:l.limit]
	}

	data, err := json.Marshal(trips)
	if err != nil {
		return fmt.Errorf("failed to encode trip history: %w", err)
	}
	if err := l.store.Set(ctx, Key, string(data)); err != nil {
		return fmt.Errorf("failed to save trip history: %w", err)
	}

	if l.archiver != nil {
		if err := l.archiver.ArchiveTrip(ctx, trip); err != nil {
			// the log entry is already saved
			l.logger.Warn("trip archive failed", "trip_id", trip.ID, "error", err)
		}
	}
	return nil
}

// List returns the log, newest first.
func (l *Log) List(ctx context.Context) ([]models.Trip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, found, err := l.store.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load trip history: %w", err)
	}
	if !found {
		return []models.Trip{}, nil
	}
	return l.decode(raw), nil
}

func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(ctx, Key)
}

// load reads the current log for an update. Corrupt data starts a fresh log;
// a failed read does not, so the update never overwrites entries it could not see.
func (l *Log) load(ctx context.Context) ([]models.Trip, error) {
	raw, found, err := l.store.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load trip history: %w", err)
	}
	if !found {
		return nil, nil
	}
	return l.decode(raw), nil
}

func (l *Log) decode(raw string) []models.Trip {
	var trips []models.Trip
	if err := json.Unmarshal([]byte(raw), &trips); err != nil {
		l.logger.Error("corrupt trip history, ignoring", "error", err)
		return []models.Trip{}
	}
	return trips
}
