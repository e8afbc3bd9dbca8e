package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/services"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/utils"
)

// DeviceHandler accepts signed readings pushed by the traveller's phone.
type DeviceHandler struct {
	feed   *services.DeviceFeed
	signer *utils.Signer
	logger *slog.Logger
}

func NewDeviceHandler(feed *services.DeviceFeed, signer *utils.Signer, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		feed:   feed,
		signer: signer,
		logger: logging.OrDefault(logger),
	}
}

type LocationRequest struct {
	Lat       float64    `json:"lat" binding:"min=-90,max=90"`
	Lng       float64    `json:"lng" binding:"min=-180,max=180"`
	AccuracyM float64    `json:"accuracy_m" binding:"min=0"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"` // device-side failure, e.g. permission revoked
	Signature string     `json:"signature" binding:"required"`
}

// SigningPayload is the content covered by the request signature.
func (r *LocationRequest) SigningPayload() map[string]interface{} {
	var ts int64
	if r.Timestamp != nil {
		ts = r.Timestamp.Unix()
	}
	return map[string]interface{}{
		"lat":        r.Lat,
		"lng":        r.Lng,
		"accuracy_m": r.AccuracyM,
		"timestamp":  ts,
		"error":      r.Error,
	}
}

type BatteryRequest struct {
	Level     *int   `json:"level" binding:"required,min=0,max=100"`
	Charging  bool   `json:"charging"`
	Signature string `json:"signature" binding:"required"`
}

// SigningPayload is the content covered by the request signature.
func (r *BatteryRequest) SigningPayload() map[string]interface{} {
	level := 0
	if r.Level != nil {
		level = *r.Level
	}
	return map[string]interface{}{
		"level":    level,
		"charging": r.Charging,
	}
}

// POST /v1/device/location
func (h *DeviceHandler) PushLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.signer.Verify(req.SigningPayload(), req.Signature); err != nil {
		h.logger.Warn("rejected device location", "client_ip", c.ClientIP(), "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	if req.Error != "" {
		h.feed.ReportPositionError(errors.New(req.Error))
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "success",
			"message": "location error recorded",
		})
		return
	}

	pos := models.Position{
		Latitude:  req.Lat,
		Longitude: req.Lng,
		Accuracy:  req.AccuracyM,
	}
	if req.Timestamp != nil {
		pos.Timestamp = *req.Timestamp
	}
	h.feed.PushPosition(pos)

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "success",
		"message": "location received",
	})
}

// POST /v1/device/battery
func (h *DeviceHandler) PushBattery(c *gin.Context) {
	var req BatteryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.signer.Verify(req.SigningPayload(), req.Signature); err != nil {
		h.logger.Warn("rejected device battery reading", "client_ip", c.ClientIP(), "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	h.feed.PushBattery(models.BatteryReading{
		Level:    float64(*req.Level) / 100,
		Charging: req.Charging,
	})

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "success",
		"message": "battery reading received",
	})
}
