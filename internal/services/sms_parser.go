package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

// DeviceUpdate is one reading relayed by the phone when it has no data link.
type DeviceUpdate struct {
	Position      *models.Position
	Battery       *models.BatteryReading
	PositionError string
	Signature     string
	// SignedContent is the payload the signature covers: every field before sig
	SignedContent string
}

// SMSParser handles parsing of compressed SMS device payloads
type SMSParser struct{}

func NewSMSParser() *SMSParser {
	return &SMSParser{}
}

// ParseDeviceSMS parses compressed SMS format:
// ts=2025-11-19T12:50:00Z;lat=6.5244;lng=3.3792;acc=20;bat=42;chg=0;sig=abc123
// The position fields are optional as a group; err=<reason> reports a
// device-side location failure instead.
func (sp *SMSParser) ParseDeviceSMS(smsBody string) (*DeviceUpdate, error) {
	body := strings.TrimSpace(smsBody)
	sigIdx := strings.LastIndex(body, ";sig=")
	if sigIdx < 0 {
		return nil, fmt.Errorf("missing signature")
	}

	update := &DeviceUpdate{
		SignedContent: body[:sigIdx],
		Signature:     strings.TrimSpace(body[sigIdx+len(";sig="):]),
	}
	if update.Signature == "" {
		return nil, fmt.Errorf("missing signature")
	}

	var (
		pos            models.Position
		hasLat, hasLng bool
		battery        models.BatteryReading
		hasBattery     bool
	)

	for _, part := range strings.Split(update.SignedContent, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}

		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])

		switch key {
		case "ts":
			timestamp, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp: %w", err)
			}
			pos.Timestamp = timestamp

		case "lat":
			lat, err := strconv.ParseFloat(value, 64)
			if err != nil || lat < -90 || lat > 90 {
				return nil, fmt.Errorf("invalid latitude %q", value)
			}
			pos.Latitude = lat
			hasLat = true

		case "lng":
			lng, err := strconv.ParseFloat(value, 64)
			if err != nil || lng < -180 || lng > 180 {
				return nil, fmt.Errorf("invalid longitude %q", value)
			}
			pos.Longitude = lng
			hasLng = true

		case "acc":
			acc, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid accuracy: %w", err)
			}
			pos.Accuracy = acc

		case "bat":
			bat, err := strconv.Atoi(value)
			if err != nil || bat < 0 || bat > 100 {
				return nil, fmt.Errorf("invalid battery %q", value)
			}
			battery.Level = float64(bat) / 100
			hasBattery = true

		case "chg":
			battery.Charging = value == "1" || value == "true"

		case "err":
			update.PositionError = value
		}
	}

	if hasLat != hasLng {
		return nil, fmt.Errorf("lat and lng must be sent together")
	}
	if hasLat {
		update.Position = &pos
	}
	if hasBattery {
		update.Battery = &battery
	}
	if update.Position == nil && update.Battery == nil && update.PositionError == "" {
		return nil, fmt.Errorf("invalid SMS format: no readings")
	}

	return update, nil
}
