package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/services"
)

const streamBuffer = 16

type TripHandler struct {
	monitor *services.TripMonitor
	logger  *slog.Logger
}

func NewTripHandler(monitor *services.TripMonitor, logger *slog.Logger) *TripHandler {
	return &TripHandler{
		monitor: monitor,
		logger:  logging.OrDefault(logger),
	}
}

type GuardianRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone" binding:"required"`
}

type StartTripRequest struct {
	UserName    string           `json:"user_name"`
	Destination string           `json:"destination" binding:"required"`
	EtaMinutes  int              `json:"eta_minutes" binding:"required"`
	Guardian    *GuardianRequest `json:"guardian" binding:"required"`
	DeviceToken string           `json:"device_token"`
}

// POST /v1/trip
func (h *TripHandler) StartTrip(c *gin.Context) {
	var req StartTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trip, err := h.monitor.StartTrip(c.Request.Context(), models.TripConfig{
		UserName:    req.UserName,
		Destination: req.Destination,
		EtaMinutes:  req.EtaMinutes,
		Guardian:    &models.Guardian{Name: req.Guardian.Name, Phone: req.Guardian.Phone},
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, trip)
}

// GET /v1/trip
func (h *TripHandler) GetActiveTrip(c *gin.Context) {
	trip := h.monitor.GetActiveTrip()
	if trip == nil {
		h.writeError(c, services.ErrNoActiveTrip)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// GET /v1/trip/status
func (h *TripHandler) GetTripStatus(c *gin.Context) {
	status := h.monitor.GetTripStatus()
	if status == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active": true,
		"status": status,
	})
}

// POST /v1/trip/arrive
func (h *TripHandler) ConfirmSafeArrival(c *gin.Context) {
	trip, err := h.monitor.ConfirmSafeArrival()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// POST /v1/trip/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	trip, err := h.monitor.CancelTrip()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// GET /v1/trip/stream
// Server-sent events carrying the status projection after every change.
func (h *TripHandler) StreamStatus(c *gin.Context) {
	updates := make(chan *models.StatusProjection, streamBuffer)
	unsubscribe := h.monitor.Subscribe(func(status *models.StatusProjection) {
		select {
		case updates <- status:
		default:
			// slow client, it catches up on the next update
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	h.writeEvent(c, h.monitor.GetTripStatus())

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-updates:
			h.writeEvent(c, status)
		}
	}
}

func (h *TripHandler) writeEvent(c *gin.Context, status *models.StatusProjection) {
	if status == nil {
		c.SSEvent("status", gin.H{"active": false})
	} else {
		c.SSEvent("status", gin.H{"active": true, "status": status})
	}
	c.Writer.Flush()
}

// GET /v1/trips/history
func (h *TripHandler) GetHistory(c *gin.Context) {
	trips, err := h.monitor.History(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load trip history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trip history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(trips),
		"trips": trips,
	})
}

// DELETE /v1/trips/history
func (h *TripHandler) ClearHistory(c *gin.Context) {
	if err := h.monitor.ClearHistory(c.Request.Context()); err != nil {
		h.logger.Error("failed to clear trip history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear trip history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "trip history cleared",
	})
}

func (h *TripHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidTripConfig):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicateTrip):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNoActiveTrip):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("trip request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
