package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/api/option"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/clock"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/config"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/database"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/handlers"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/history"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/metrics"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/services"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	// Trip history store: Redis when configured, in-memory otherwise
	var store history.Store
	if cfg.RedisURL != "" {
		redis, err := database.NewRedisDB(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redis.Close()
		store = redis
		log.Println("✓ Connected to Redis")
	} else {
		store = database.NewMemoryStore()
		log.Println("Warning: REDIS_URL not set, trip history is kept in memory")
	}

	// Postgres trip archive (optional)
	var archiver history.Archiver
	var archive handlers.TripArchive
	if cfg.DatabaseURL != "" {
		postgres, err := database.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer postgres.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = postgres.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to prepare Postgres schema: %v", err)
		}
		archiver = postgres
		archive = postgres
		log.Println("✓ Connected to Postgres")
	}

	// Initialize Firebase (optional)
	var fcmClient *messaging.Client
	if cfg.FCMCredentialsPath != "" {
		ctx := context.Background()
		opt := option.WithCredentialsFile(cfg.FCMCredentialsPath)
		app, err := firebase.NewApp(ctx, nil, opt)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase: %v", err)
		} else {
			fcmClient, err = app.Messaging(ctx)
			if err != nil {
				log.Printf("Warning: Failed to initialize FCM client: %v", err)
			} else {
				log.Println("✓ Firebase FCM initialized")
			}
		}
	}

	// Initialize services
	appMetrics := metrics.New()
	realClock := clock.RealClock{}
	alertEngine := services.NewAlertEngine(cfg, fcmClient, logger)
	feed := services.NewDeviceFeed(realClock, cfg.LocationMaxAge())
	tripLog := history.NewLog(store, cfg.TripHistoryLimit, archiver, logger)

	monitor := services.NewTripMonitor(services.MonitorConfig{
		CriticalBatteryPct:  cfg.CriticalBatteryPct,
		TickInterval:        cfg.TickInterval(),
		LocationTimeout:     cfg.LocationTimeout(),
		LocationHistorySize: cfg.LocationHistorySize,
		TrackingBaseURL:     cfg.TrackingBaseURL,
		NotifyTimeout:       cfg.NotifyTimeout(),
	}, services.MonitorDeps{
		Clock:     realClock,
		Locations: feed,
		Power:     feed,
		Notifier:  alertEngine,
		History:   tripLog,
		Metrics:   appMetrics,
		Logger:    logger,
	})
	log.Println("✓ Services initialized")

	// Initialize handlers
	signer := utils.NewSigner(cfg.HMACSecret)
	tripHandler := handlers.NewTripHandler(monitor, logger)
	trailHandler := handlers.NewTrailHandler(monitor, archive, logger)
	deviceHandler := handlers.NewDeviceHandler(feed, signer, logger)
	smsHandler := handlers.NewSMSHandler(feed, signer, logger)
	limiter := handlers.NewRateLimiter(cfg.DeviceRateLimitPerSecond)

	// Setup Gin router
	router := setupRouter(appMetrics, limiter, tripHandler, trailHandler, deviceHandler, smsHandler)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Printf("🚀 TripGuard API server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Deliver queued guardian messages before exiting
	monitor.Close()

	log.Println("Server stopped gracefully")
}

func setupRouter(
	appMetrics *metrics.Metrics,
	limiter *handlers.RateLimiter,
	tripHandler *handlers.TripHandler,
	trailHandler *handlers.TrailHandler,
	deviceHandler *handlers.DeviceHandler,
	smsHandler *handlers.SMSHandler,
) *gin.Engine {
	router := gin.Default()
	router.Use(handlers.MetricsMiddleware(appMetrics))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "tripguard-api",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(appMetrics.Registry, promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Trip lifecycle
		v1.POST("/trip", tripHandler.StartTrip)
		v1.GET("/trip", tripHandler.GetActiveTrip)
		v1.GET("/trip/status", tripHandler.GetTripStatus)
		v1.POST("/trip/arrive", tripHandler.ConfirmSafeArrival)
		v1.POST("/trip/cancel", tripHandler.CancelTrip)
		v1.GET("/trip/stream", tripHandler.StreamStatus)
		v1.GET("/trip/locations", trailHandler.GetLocationTrail)

		// History and archive
		v1.GET("/trips/history", tripHandler.GetHistory)
		v1.DELETE("/trips/history", tripHandler.ClearHistory)
		v1.GET("/trips/archive", trailHandler.ListArchivedTrips)
		v1.GET("/trips/archive/:id", trailHandler.GetArchivedTrip)

		// Device ingestion
		device := v1.Group("/device", limiter.Middleware())
		device.POST("/location", deviceHandler.PushLocation)
		device.POST("/battery", deviceHandler.PushBattery)

		// SMS webhook
		v1.POST("/sms/webhook", limiter.Middleware(), smsHandler.HandleIncomingSMS)
	}

	return router
}
