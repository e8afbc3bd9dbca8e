package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/twpayne/go-polyline"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/services"
)

const (
	defaultArchiveLimit = 20
	maxArchiveLimit     = 200
)

// TripArchive is the long-term trip store. It is optional.
type TripArchive interface {
	ListArchivedTrips(ctx context.Context, limit int) ([]models.Trip, error)
	GetArchivedTrip(ctx context.Context, id string) (*models.Trip, error)
}

type TrailHandler struct {
	monitor *services.TripMonitor
	archive TripArchive
	logger  *slog.Logger
}

// NewTrailHandler builds the trail endpoints. archive may be nil.
func NewTrailHandler(monitor *services.TripMonitor, archive TripArchive, logger *slog.Logger) *TrailHandler {
	return &TrailHandler{
		monitor: monitor,
		archive: archive,
		logger:  logging.OrDefault(logger),
	}
}

// GET /v1/trip/locations
func (h *TrailHandler) GetLocationTrail(c *gin.Context) {
	trip := h.monitor.GetActiveTrip()
	if trip == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": services.ErrNoActiveTrip.Error()})
		return
	}

	trail := h.monitor.LocationTrail()
	coords := make([][]float64, 0, len(trail))
	for _, p := range trail {
		coords = append(coords, []float64{p.Latitude, p.Longitude})
	}

	c.JSON(http.StatusOK, gin.H{
		"trip_id":     trip.ID,
		"data_points": len(trail),
		"points":      trail,
		"polyline":    string(polyline.EncodeCoords(coords)),
		"distance_km": services.TrailDistanceKm(trail),
	})
}

// GET /v1/trips/archive
func (h *TrailHandler) ListArchivedTrips(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trip archive not configured"})
		return
	}

	limit := defaultArchiveLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxArchiveLimit)
	}

	trips, err := h.archive.ListArchivedTrips(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list archived trips", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get trips"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(trips),
		"trips": trips,
	})
}

// GET /v1/trips/archive/:id
func (h *TrailHandler) GetArchivedTrip(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trip archive not configured"})
		return
	}

	trip, err := h.archive.GetArchivedTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to get archived trip", "trip_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	if trip == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trip not found"})
		return
	}

	c.JSON(http.StatusOK, trip)
}
