package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/clock"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/database"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/history"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/logging"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/services"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/utils"
)

const testSecret = "test-secret"

var testStart = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingSink struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (s *recordingSink) Send(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

type testEnv struct {
	clock   *clock.MockClock
	feed    *services.DeviceFeed
	sink    *recordingSink
	monitor *services.TripMonitor
	signer  *utils.Signer
	logger  *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mc := clock.NewMockClock(testStart)
	logger := logging.NewWithWriter(io.Discard, "ERROR")
	feed := services.NewDeviceFeed(mc, 5*time.Second)
	sink := &recordingSink{}

	cfg := services.DefaultMonitorConfig()
	cfg.LocationTimeout = 20 * time.Millisecond
	monitor := services.NewTripMonitor(cfg, services.MonitorDeps{
		Clock:     mc,
		Locations: feed,
		Power:     feed,
		Notifier:  sink,
		History:   history.NewLog(database.NewMemoryStore(), 50, nil, logger),
		Logger:    logger,
	})
	t.Cleanup(monitor.Close)

	return &testEnv{
		clock:   mc,
		feed:    feed,
		sink:    sink,
		monitor: monitor,
		signer:  utils.NewSigner(testSecret),
		logger:  logger,
	}
}

func (e *testEnv) startTrip(t *testing.T) *models.Trip {
	t.Helper()
	trip, err := e.monitor.StartTrip(context.Background(), models.TripConfig{
		UserName:    "Alex",
		Destination: "Home",
		EtaMinutes:  10,
		Guardian:    &models.Guardian{Name: "Sam", Phone: "555-1111"},
	})
	require.NoError(t, err)
	return trip
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}
