package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	LogLevel string

	// Storage
	DatabaseURL string // optional, enables the Postgres trip archive
	RedisURL    string // optional, empty selects the in-memory store

	// Security
	HMACSecret string

	// Twilio (all three required for live SMS, otherwise simulation mode)
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// Firebase
	FCMCredentialsPath string

	// Links
	MapboxToken     string
	TrackingBaseURL string

	// Trip monitoring
	CriticalBatteryPct     int
	TickIntervalMs         int
	LocationTimeoutSeconds int
	LocationMaxAgeSeconds  int
	LocationHistorySize    int
	TripHistoryLimit       int
	NotifyTimeoutSeconds   int

	// Device ingestion
	DeviceRateLimitPerSecond int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		LogLevel:                 getEnv("LOG_LEVEL", "INFO"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		RedisURL:                 getEnv("REDIS_URL", ""),
		HMACSecret:               getEnv("HMAC_SECRET", ""),
		TwilioAccountSID:         getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:          getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:        getEnv("TWILIO_PHONE_NUMBER", ""),
		FCMCredentialsPath:       getEnv("FCM_CREDENTIALS_PATH", ""),
		MapboxToken:              getEnv("MAPBOX_TOKEN", ""),
		TrackingBaseURL:          getEnv("TRACKING_BASE_URL", "https://aura.app/track"),
		CriticalBatteryPct:       getEnvInt("CRITICAL_BATTERY_PCT", 10),
		TickIntervalMs:           getEnvInt("TICK_INTERVAL_MS", 1000),
		LocationTimeoutSeconds:   getEnvInt("LOCATION_TIMEOUT_SECONDS", 10),
		LocationMaxAgeSeconds:    getEnvInt("LOCATION_MAX_AGE_SECONDS", 5),
		LocationHistorySize:      getEnvInt("LOCATION_HISTORY_SIZE", 100),
		TripHistoryLimit:         getEnvInt("TRIP_HISTORY_LIMIT", 50),
		NotifyTimeoutSeconds:     getEnvInt("NOTIFY_TIMEOUT_SECONDS", 15),
		DeviceRateLimitPerSecond: getEnvInt("DEVICE_RATE_LIMIT_PER_SECOND", 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.HMACSecret == "" {
		return fmt.Errorf("HMAC_SECRET is required")
	}
	if c.CriticalBatteryPct < 0 || c.CriticalBatteryPct > 100 {
		return fmt.Errorf("CRITICAL_BATTERY_PCT must be between 0 and 100, got %d", c.CriticalBatteryPct)
	}
	// the deadline check must run at least once per second
	if c.TickIntervalMs <= 0 || c.TickIntervalMs > 1000 {
		return fmt.Errorf("TICK_INTERVAL_MS must be in (0, 1000], got %d", c.TickIntervalMs)
	}
	if c.LocationTimeoutSeconds <= 0 {
		return fmt.Errorf("LOCATION_TIMEOUT_SECONDS must be positive")
	}
	if c.LocationHistorySize <= 0 {
		return fmt.Errorf("LOCATION_HISTORY_SIZE must be positive")
	}
	if c.TripHistoryLimit <= 0 {
		return fmt.Errorf("TRIP_HISTORY_LIMIT must be positive")
	}
	return nil
}

// TwilioConfigured reports whether live SMS delivery is possible.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

func (c *Config) LocationTimeout() time.Duration {
	return time.Duration(c.LocationTimeoutSeconds) * time.Second
}

func (c *Config) LocationMaxAge() time.Duration {
	return time.Duration(c.LocationMaxAgeSeconds) * time.Second
}

func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
