package database

import (
	"context"
	"fmt"
	"time"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDB archives every trip that reaches the history log so records
// survive the 50-entry cap of the log itself.
type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	// Set connection pool settings
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.pool.Close()
}

const schema = `
	CREATE TABLE IF NOT EXISTS trips (
		id                    TEXT PRIMARY KEY,
		user_name             TEXT NOT NULL,
		destination           TEXT NOT NULL,
		eta_minutes           INTEGER NOT NULL,
		guardian              JSONB NOT NULL,
		start_time            TIMESTAMPTZ NOT NULL,
		expected_arrival_time TIMESTAMPTZ NOT NULL,
		start_location        JSONB,
		current_location      JSONB,
		battery_level         INTEGER NOT NULL,
		status                TEXT NOT NULL,
		escalated             BOOLEAN NOT NULL DEFAULT FALSE,
		escalation_type       TEXT NOT NULL DEFAULT '',
		safe_arrival          BOOLEAN NOT NULL DEFAULT FALSE,
		escalation_time       TIMESTAMPTZ,
		completion_time       TIMESTAMPTZ,
		cancel_time           TIMESTAMPTZ,
		archived_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// EnsureSchema creates the trips table if it does not exist.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create trips table: %w", err)
	}
	return nil
}

// ArchiveTrip inserts the trip or overwrites the previous record with the same id.
func (db *PostgresDB) ArchiveTrip(ctx context.Context, trip *models.Trip) error {
	query := `
		INSERT INTO trips (id, user_name, destination, eta_minutes, guardian, start_time,
			expected_arrival_time, start_location, current_location, battery_level, status,
			escalated, escalation_type, safe_arrival, escalation_time, completion_time, cancel_time, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (id) DO UPDATE SET
			current_location = EXCLUDED.current_location,
			battery_level    = EXCLUDED.battery_level,
			status           = EXCLUDED.status,
			escalated        = EXCLUDED.escalated,
			escalation_type  = EXCLUDED.escalation_type,
			safe_arrival     = EXCLUDED.safe_arrival,
			escalation_time  = EXCLUDED.escalation_time,
			completion_time  = EXCLUDED.completion_time,
			cancel_time      = EXCLUDED.cancel_time,
			archived_at      = NOW()
	`
	// Guardian and Position encode themselves as JSONB; nil locations are NULL.
	_, err := db.pool.Exec(ctx, query,
		trip.ID, trip.UserName, trip.Destination, trip.EtaMinutes, trip.Guardian,
		trip.StartTime, trip.ExpectedArrivalTime, trip.StartLocation, trip.CurrentLocation,
		trip.BatteryLevel, string(trip.Status), trip.Escalated, string(trip.EscalationType),
		trip.SafeArrival, trip.EscalationTime, trip.CompletionTime, trip.CancelTime,
	)
	if err != nil {
		return fmt.Errorf("failed to archive trip %s: %w", trip.ID, err)
	}
	return nil
}

// ListArchivedTrips returns the most recently started trips first.
func (db *PostgresDB) ListArchivedTrips(ctx context.Context, limit int) ([]models.Trip, error) {
	query := `
		SELECT id, user_name, destination, eta_minutes, guardian, start_time,
			expected_arrival_time, start_location, current_location, battery_level, status,
			escalated, escalation_type, safe_arrival, escalation_time, completion_time, cancel_time
		FROM trips
		ORDER BY start_time DESC
		LIMIT $1
	`
	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []models.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *trip)
	}
	return trips, rows.Err()
}

// GetArchivedTrip returns nil, nil when no trip has the id.
func (db *PostgresDB) GetArchivedTrip(ctx context.Context, id string) (*models.Trip, error) {
	query := `
		SELECT id, user_name, destination, eta_minutes, guardian, start_time,
			expected_arrival_time, start_location, current_location, battery_level, status,
			escalated, escalation_type, safe_arrival, escalation_time, completion_time, cancel_time
		FROM trips WHERE id = $1
	`
	trip, err := scanTrip(db.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return trip, nil
}

func scanTrip(row pgx.Row) (*models.Trip, error) {
	var (
		trip                 models.Trip
		startLoc, currentLoc []byte
		status, escalation   string
	)
	err := row.Scan(
		&trip.ID, &trip.UserName, &trip.Destination, &trip.EtaMinutes, &trip.Guardian,
		&trip.StartTime, &trip.ExpectedArrivalTime, &startLoc, &currentLoc,
		&trip.BatteryLevel, &status, &trip.Escalated, &escalation, &trip.SafeArrival,
		&trip.EscalationTime, &trip.CompletionTime, &trip.CancelTime,
	)
	if err != nil {
		return nil, err
	}
	if trip.StartLocation, err = scanPosition(startLoc); err != nil {
		return nil, err
	}
	if trip.CurrentLocation, err = scanPosition(currentLoc); err != nil {
		return nil, err
	}
	trip.Status = models.TripStatus(status)
	trip.EscalationType = models.EscalationType(escalation)
	return &trip, nil
}

// scanPosition decodes a nullable JSONB location column.
func scanPosition(b []byte) (*models.Position, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var p models.Position
	if err := p.Scan(b); err != nil {
		return nil, fmt.Errorf("invalid position: %w", err)
	}
	return &p, nil
}
