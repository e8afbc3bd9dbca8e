package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/clock"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

func TestDeviceFeed_CurrentPositionUsesFreshReading(t *testing.T) {
	mc := clock.NewMockClock(testStart)
	feed := NewDeviceFeed(mc, 5*time.Second)
	feed.PushPosition(models.Position{Latitude: 1, Longitude: 2})

	mc.Advance(5 * time.Second)
	pos, err := feed.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos.Latitude)
}

func TestDeviceFeed_CurrentPositionWaitsForPush(t *testing.T) {
	mc := clock.NewMockClock(testStart)
	feed := NewDeviceFeed(mc, 5*time.Second)
	feed.PushPosition(models.Position{Latitude: 1, Longitude: 2})
	mc.Advance(6 * time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		feed.PushPosition(models.Position{Latitude: 3, Longitude: 4})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pos, err := feed.CurrentPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, pos.Latitude)
}

func TestDeviceFeed_CurrentPositionTimesOut(t *testing.T) {
	feed := NewDeviceFeed(clock.NewMockClock(testStart), 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := feed.CurrentPosition(ctx)
	assert.ErrorIs(t, err, ErrPositionUnavailable)

	feed.mu.Lock()
	assert.Empty(t, feed.positionWaiters)
	feed.mu.Unlock()
}

func TestDeviceFeed_WatchPosition(t *testing.T) {
	feed := NewDeviceFeed(clock.NewMockClock(testStart), time.Second)

	var updates []models.Position
	var errs []error
	stop, err := feed.WatchPosition(
		func(p models.Position) { updates = append(updates, p) },
		func(err error) { errs = append(errs, err) },
	)
	require.NoError(t, err)

	feed.PushPosition(models.Position{Latitude: 1})
	feed.ReportPositionError(errors.New("denied"))
	stop()
	stop()
	feed.PushPosition(models.Position{Latitude: 2})

	require.Len(t, updates, 1)
	assert.Equal(t, 1.0, updates[0].Latitude)
	require.Len(t, errs, 1)
}

func TestDeviceFeed_WatchBatteryReplaysLastReading(t *testing.T) {
	feed := NewDeviceFeed(clock.NewMockClock(testStart), time.Second)

	_, ok := feed.LastBattery()
	assert.False(t, ok)

	feed.PushBattery(models.BatteryReading{Level: 0.42, Charging: true})

	var readings []models.BatteryReading
	stop, err := feed.WatchBattery(func(r models.BatteryReading) { readings = append(readings, r) })
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 0.42, readings[0].Level)

	feed.PushBattery(models.BatteryReading{Level: 0.40})
	stop()
	feed.PushBattery(models.BatteryReading{Level: 0.38})

	assert.Len(t, readings, 2)
	last, ok := feed.LastBattery()
	assert.True(t, ok)
	assert.Equal(t, 0.38, last.Level)
}

func TestDeviceFeed_WatchBatterySkipsStaleReading(t *testing.T) {
	mc := clock.NewMockClock(testStart)
	feed := NewDeviceFeed(mc, 5*time.Second)
	feed.PushBattery(models.BatteryReading{Level: 0.08})

	mc.Advance(time.Hour)
	var readings []models.BatteryReading
	stop, err := feed.WatchBattery(func(r models.BatteryReading) { readings = append(readings, r) })
	require.NoError(t, err)
	defer stop()
	assert.Empty(t, readings)

	feed.PushBattery(models.BatteryReading{Level: 0.07})
	require.Len(t, readings, 1)
	assert.Equal(t, 0.07, readings[0].Level)
}

func TestDeviceFeed_RequiresCallbacks(t *testing.T) {
	feed := NewDeviceFeed(nil, time.Second)

	_, err := feed.WatchPosition(nil, nil)
	assert.Error(t, err)
	_, err = feed.WatchBattery(nil)
	assert.Error(t, err)
}
