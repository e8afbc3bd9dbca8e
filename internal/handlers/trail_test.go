package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

type fakeArchive struct {
	trips     map[string]models.Trip
	lastLimit int
	err       error
}

func (f *fakeArchive) ListArchivedTrips(ctx context.Context, limit int) ([]models.Trip, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Trip, 0, len(f.trips))
	for _, trip := range f.trips {
		out = append(out, trip)
	}
	return out, nil
}

func (f *fakeArchive) GetArchivedTrip(ctx context.Context, id string) (*models.Trip, error) {
	if f.err != nil {
		return nil, f.err
	}
	trip, ok := f.trips[id]
	if !ok {
		return nil, nil
	}
	return &trip, nil
}

func newTrailRouter(e *testEnv, archive TripArchive) *gin.Engine {
	h := NewTrailHandler(e.monitor, archive, e.logger)
	router := gin.New()
	router.GET("/v1/trip/locations", h.GetLocationTrail)
	router.GET("/v1/trips/archive", h.ListArchivedTrips)
	router.GET("/v1/trips/archive/:id", h.GetArchivedTrip)
	return router
}

func TestGetLocationTrail(t *testing.T) {
	e := newTestEnv(t)
	router := newTrailRouter(e, nil)

	w := doJSON(t, router, http.MethodGet, "/v1/trip/locations", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	trip := e.startTrip(t)
	e.feed.PushPosition(models.Position{Latitude: 6.5244, Longitude: 3.3792})
	e.feed.PushPosition(models.Position{Latitude: 6.5300, Longitude: 3.3800})

	w = doJSON(t, router, http.MethodGet, "/v1/trip/locations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		TripID     string            `json:"trip_id"`
		DataPoints int               `json:"data_points"`
		Points     []models.Position `json:"points"`
		Polyline   string            `json:"polyline"`
		DistanceKm float64           `json:"distance_km"`
	}
	decode(t, w, &resp)
	assert.Equal(t, trip.ID, resp.TripID)
	assert.Equal(t, 2, resp.DataPoints)
	assert.Greater(t, resp.DistanceKm, 0.5)

	coords, _, err := polyline.DecodeCoords([]byte(resp.Polyline))
	require.NoError(t, err)
	require.Len(t, coords, 2)
	assert.InDelta(t, 6.5244, coords[0][0], 1e-5)
	assert.InDelta(t, 3.3800, coords[1][1], 1e-5)
}

func TestArchive_NotConfigured(t *testing.T) {
	router := newTrailRouter(newTestEnv(t), nil)

	w := doJSON(t, router, http.MethodGet, "/v1/trips/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = doJSON(t, router, http.MethodGet, "/v1/trips/archive/abc", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListArchivedTrips(t *testing.T) {
	archive := &fakeArchive{trips: map[string]models.Trip{
		"a": {ID: "a", Status: models.TripStatusCompleted},
	}}
	router := newTrailRouter(newTestEnv(t), archive)

	w := doJSON(t, router, http.MethodGet, "/v1/trips/archive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultArchiveLimit, archive.lastLimit)

	w = doJSON(t, router, http.MethodGet, "/v1/trips/archive?limit=5000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxArchiveLimit, archive.lastLimit)

	w = doJSON(t, router, http.MethodGet, "/v1/trips/archive?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	archive.err = errors.New("db down")
	w = doJSON(t, router, http.MethodGet, "/v1/trips/archive", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetArchivedTrip(t *testing.T) {
	archive := &fakeArchive{trips: map[string]models.Trip{
		"a": {ID: "a", Status: models.TripStatusCancelled},
	}}
	router := newTrailRouter(newTestEnv(t), archive)

	w := doJSON(t, router, http.MethodGet, "/v1/trips/archive/a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trip models.Trip
	decode(t, w, &trip)
	assert.Equal(t, models.TripStatusCancelled, trip.Status)

	w = doJSON(t, router, http.MethodGet, "/v1/trips/archive/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
