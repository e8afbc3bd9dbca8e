package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/services"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/utils"
)

type SMSHandler struct {
	feed      *services.DeviceFeed
	signer    *utils.Signer
	smsParser *services.SMSParser
	logger    *slog.Logger
}

func NewSMSHandler(feed *services.DeviceFeed, signer *utils.Signer, logger *slog.Logger) *SMSHandler {
	return &SMSHandler{
		feed:      feed,
		signer:    signer,
		smsParser: services.NewSMSParser(),
		logger:    logging.OrDefault(logger),
	}
}

// POST /v1/sms/webhook
// Twilio sends SMS data as form-encoded
func (h *SMSHandler) HandleIncomingSMS(c *gin.Context) {
	body := c.PostForm("Body")

	if body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message body"})
		return
	}

	// Parse failures still answer 200 so Twilio does not retry
	update, err := h.smsParser.ParseDeviceSMS(body)
	if err != nil {
		h.logger.Warn("unparseable device SMS", "from", c.PostForm("From"), "error", err)
		twiml(c, "Message received but could not be parsed")
		return
	}

	if err := h.signer.VerifyString(update.SignedContent, update.Signature); err != nil {
		h.logger.Warn("device SMS with invalid signature", "from", c.PostForm("From"))
		twiml(c, "Invalid signature")
		return
	}

	if update.Position != nil {
		h.feed.PushPosition(*update.Position)
	}
	if update.PositionError != "" {
		h.feed.ReportPositionError(errors.New(update.PositionError))
	}
	if update.Battery != nil {
		h.feed.PushBattery(*update.Battery)
	}

	h.logger.Info("device SMS applied",
		"has_position", update.Position != nil,
		"has_battery", update.Battery != nil,
	)
	twiml(c, "Update received")
}

// twiml responds in the format Twilio expects
func twiml(c *gin.Context, message string) {
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, `<?xml version="1.0" encoding="UTF-8"?><Response><Message>`+message+`</Message></Response>`)
}
