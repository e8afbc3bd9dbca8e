package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/config"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

// messageAPI is the part of the Twilio REST API used for SMS and WhatsApp.
type messageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// pushClient is the part of the FCM client used for device pushes.
type pushClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// AlertEngine delivers guardian notifications over Twilio SMS and WhatsApp
// and alerts the traveller's phone over FCM.
type AlertEngine struct {
	fromNumber  string
	mapboxToken string
	messages    messageAPI // nil in simulation mode
	push        pushClient // nil when FCM is not configured
	logger      *slog.Logger
}

func NewAlertEngine(cfg *config.Config, fcmClient *messaging.Client, logger *slog.Logger) *AlertEngine {
	ae := &AlertEngine{
		fromNumber:  cfg.TwilioPhoneNumber,
		mapboxToken: cfg.MapboxToken,
		logger:      logging.OrDefault(logger),
	}

	if cfg.TwilioConfigured() {
		twilioClient := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		})
		ae.messages = twilioClient.Api
	} else {
		ae.logger.Warn("twilio not configured, guardian messages run in simulation mode")
	}

	if fcmClient != nil {
		ae.push = fcmClient
	}

	return ae
}

// Send implements NotificationSink.
func (ae *AlertEngine) Send(ctx context.Context, n models.Notification) error {
	switch n.Type {
	case models.NotificationTripStart, models.NotificationSafeArrival:
		return ae.SendSMS(n.Guardian.Phone, n.Message)
	case models.NotificationSOS:
		return ae.sendSOS(ctx, n)
	default:
		return fmt.Errorf("unknown notification type %q", n.Type)
	}
}

func (ae *AlertEngine) sendSOS(ctx context.Context, n models.Notification) error {
	message := ae.buildSOSMessage(n)

	err := ae.SendSMS(n.Guardian.Phone, message)

	// WhatsApp requires "whatsapp:" prefix and is best effort
	if waErr := ae.SendWhatsApp(n.Guardian.Phone, message); waErr != nil {
		ae.logger.Warn("whatsapp SOS failed", "trip_id", n.TripID, "error", waErr)
	}

	if n.DeviceToken != "" && ae.push != nil {
		if pushErr := ae.SendPushNotification(ctx, n.DeviceToken, "🚨 EMERGENCY ALERT", n.Message); pushErr != nil {
			ae.logger.Warn("SOS push to traveller failed", "trip_id", n.TripID, "error", pushErr)
		}
	}

	if err != nil {
		return fmt.Errorf("SOS to guardian failed: %w", err)
	}
	return nil
}

// SendSMS sends an SMS via Twilio
func (ae *AlertEngine) SendSMS(to, message string) error {
	return ae.createMessage(to, ae.fromNumber, message, "SMS")
}

// SendWhatsApp sends a WhatsApp message via Twilio
func (ae *AlertEngine) SendWhatsApp(to, message string) error {
	return ae.createMessage("whatsapp:"+to, "whatsapp:"+ae.fromNumber, message, "WhatsApp")
}

func (ae *AlertEngine) createMessage(to, from, body, channel string) error {
	if ae.messages == nil {
		ae.logger.Info("simulated guardian message", "channel", channel, "to", to, "body", body)
		return nil
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	resp, err := ae.messages.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio %s error: %w", channel, err)
	}

	if resp != nil && resp.ErrorCode != nil {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error code: %d, message: %s", *resp.ErrorCode, msg)
	}

	return nil
}

// SendPushNotification sends a high-priority push notification via FCM
func (ae *AlertEngine) SendPushNotification(ctx context.Context, fcmToken, title, body string) error {
	if ae.push == nil {
		return fmt.Errorf("FCM client not initialized")
	}

	message := &messaging.Message{
		Token: fcmToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Priority: messaging.PriorityHigh,
				Sound:    "default",
				Tag:      "sos-alert",
			},
		},
	}

	if _, err := ae.push.Send(ctx, message); err != nil {
		return fmt.Errorf("FCM error: %w", err)
	}

	return nil
}

// buildSOSMessage constructs the guardian SOS text
func (ae *AlertEngine) buildSOSMessage(n models.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 AURA SOS: %s\n\n", n.Reason)
	fmt.Fprintf(&b, "%s\n\n", n.Message)
	fmt.Fprintf(&b, "Destination: %s\n", n.Destination)
	fmt.Fprintf(&b, "Time: %s\n", n.Timestamp.Format("Jan 2, 3:04 PM"))

	if n.Location != nil {
		fmt.Fprintf(&b, "Location: %.6f, %.6f (±%.0fm)\n", n.Location.Latitude, n.Location.Longitude, n.Location.Accuracy)
	} else {
		b.WriteString("Location: unknown\n")
	}
	if n.BatteryLevel != nil {
		fmt.Fprintf(&b, "Battery: %d%%\n", *n.BatteryLevel)
	}

	fmt.Fprintf(&b, "\nLive tracking: %s\n", n.TrackingLink)
	if n.Location != nil {
		fmt.Fprintf(&b, "Map: %s\n", ae.generateMapLink(n.Location.Latitude, n.Location.Longitude))
	}
	b.WriteString("\nPlease check on them immediately.")

	return b.String()
}

// generateMapLink creates a link to view location on map
func (ae *AlertEngine) generateMapLink(lat, lng float64) string {
	if ae.mapboxToken != "" {
		return fmt.Sprintf(
			"https://api.mapbox.com/styles/v1/mapbox/streets-v11/static/pin-s+f74e4e(%.6f,%.6f)/%.6f,%.6f,15,0/600x400@2x?access_token=%s",
			lng, lat, lng, lat, ae.mapboxToken,
		)
	}
	// Fallback to Google Maps
	return fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", lat, lng)
}
