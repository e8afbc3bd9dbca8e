package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/database"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

type fakeArchiver struct {
	archived []string
	err      error
}

func (f *fakeArchiver) ArchiveTrip(ctx context.Context, trip *models.Trip) error {
	f.archived = append(f.archived, trip.ID)
	return f.err
}

// flakyStore fails reads while GetErr is set.
type flakyStore struct {
	*database.MemoryStore
	GetErr   error
	setCalls int
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.GetErr != nil {
		return "", false, f.GetErr
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	f.setCalls++
	return f.MemoryStore.Set(ctx, key, value)
}

func trip(id string, status models.TripStatus) *models.Trip {
	return &models.Trip{
		ID:          id,
		UserName:    "Alex",
		Destination: "Home",
		EtaMinutes:  10,
		Guardian:    models.Guardian{Name: "Sam", Phone: "555-1111"},
		StartTime:   time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC),
		Status:      status,
	}
}

func TestLog_EmptyList(t *testing.T) {
	l := NewLog(database.NewMemoryStore(), 50, nil, nil)

	trips, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestLog_RecordPrependsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := NewLog(database.NewMemoryStore(), 50, nil, nil)

	require.NoError(t, l.Record(ctx, trip("a", models.TripStatusCompleted)))
	require.NoError(t, l.Record(ctx, trip("b", models.TripStatusCancelled)))

	trips, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "b", trips[0].ID)
	assert.Equal(t, "a", trips[1].ID)
}

func TestLog_RecordUpsertsById(t *testing.T) {
	ctx := context.Background()
	l := NewLog(database.NewMemoryStore(), 50, nil, nil)

	require.NoError(t, l.Record(ctx, trip("a", models.TripStatusEscalated)))
	require.NoError(t, l.Record(ctx, trip("b", models.TripStatusCompleted)))
	require.NoError(t, l.Record(ctx, trip("a", models.TripStatusCancelled)))

	trips, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "b", trips[0].ID)
	assert.Equal(t, "a", trips[1].ID)
	assert.Equal(t, models.TripStatusCancelled, trips[1].Status)
}

func TestLog_EvictsOldestBeyondLimit(t *testing.T) {
	ctx := context.Background()
	l := NewLog(database.NewMemoryStore(), 50, nil, nil)

	for i := 0; i < 55; i++ {
		require.NoError(t, l.Record(ctx, trip(fmt.Sprintf("t%02d", i), models.TripStatusCompleted)))
	}

	trips, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, trips, 50)
	assert.Equal(t, "t54", trips[0].ID)
	assert.Equal(t, "t05", trips[49].ID)
}

func TestLog_CorruptPayloadStartsFresh(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	require.NoError(t, store.Set(ctx, Key, "{not json"))
	l := NewLog(store, 50, nil, nil)

	trips, err := l.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, trips)

	require.NoError(t, l.Record(ctx, trip("a", models.TripStatusCompleted)))
	trips, err = l.List(ctx)
	require.NoError(t, err)
	assert.Len(t, trips, 1)
}

func TestLog_Clear(t *testing.T) {
	ctx := context.Background()
	l := NewLog(database.NewMemoryStore(), 50, nil, nil)
	require.NoError(t, l.Record(ctx, trip("a", models.TripStatusCompleted)))

	require.NoError(t, l.Clear(ctx))

	trips, err := l.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestLog_ArchiverFailureDoesNotFailRecord(t *testing.T) {
	ctx := context.Background()
	archiver := &fakeArchiver{err: errors.New("db down")}
	l := NewLog(database.NewMemoryStore(), 50, archiver, nil)

	require.NoError(t, l.Record(ctx, trip("a", models.TripStatusCompleted)))
	assert.Equal(t, []string{"a"}, archiver.archived)

	trips, err := l.List(ctx)
	require.NoError(t, err)
	assert.Len(t, trips, 1)
}

func TestLog_DefaultLimit(t *testing.T) {
	l := NewLog(database.NewMemoryStore(), 0, nil, nil)
	assert.Equal(t, DefaultLimit, l.limit)
}

func TestLog_ReadFailureKeepsExistingEntries(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: database.NewMemoryStore()}
	archiver := &fakeArchiver{}
	l := NewLog(store, 50, archiver, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Record(ctx, trip(fmt.Sprintf("t%02d", i), models.TripStatusCompleted)))
	}
	writes := store.setCalls

	store.GetErr = errors.New("redis: i/o timeout")
	err := l.Record(ctx, trip("t10", models.TripStatusCompleted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load trip history")
	assert.Equal(t, writes, store.setCalls)
	assert.Len(t, archiver.archived, 10)

	store.GetErr = nil
	trips, err := l.List(ctx)
	require.NoError(t, err)
	assert.Len(t, trips, 10)
	assert.Equal(t, "t09", trips[0].ID)
}
