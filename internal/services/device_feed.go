package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adedejiosvaldo/safetrace/tripguard/internal/clock"
	"github.com/adedejiosvaldo/safetrace/tripguard/internal/models"
)

// DeviceFeed turns position and battery readings pushed by the phone (over
// HTTP or SMS) into the watch-style sources the trip monitor consumes.
type DeviceFeed struct {
	clock  clock.Clock
	maxAge time.Duration

	mu              sync.Mutex
	lastPosition    *models.Position
	lastPositionAt  time.Time
	lastBattery     *models.BatteryReading
	lastBatteryAt   time.Time
	positionWaiters []chan models.Position
	positionWatch   map[int]positionWatcher
	batteryWatch    map[int]func(models.BatteryReading)
	nextID          int
}

type positionWatcher struct {
	onUpdate func(models.Position)
	onError  func(error)
}

func NewDeviceFeed(clk clock.Clock, maxAge time.Duration) *DeviceFeed {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &DeviceFeed{
		clock:         clk,
		maxAge:        maxAge,
		positionWatch: make(map[int]positionWatcher),
		batteryWatch:  make(map[int]func(models.BatteryReading)),
	}
}

// CurrentPosition returns the latest pushed position if it is younger than
// the max age, otherwise it waits for the next push until ctx ends.
func (f *DeviceFeed) CurrentPosition(ctx context.Context) (models.Position, error) {
	f.mu.Lock()
	if f.lastPosition != nil && f.clock.Now().Sub(f.lastPositionAt) <= f.maxAge {
		pos := *f.lastPosition
		f.mu.Unlock()
		return pos, nil
	}
	ch := make(chan models.Position, 1)
	f.positionWaiters = append(f.positionWaiters, ch)
	f.mu.Unlock()

	select {
	case pos := <-ch:
		return pos, nil
	case <-ctx.Done():
		f.removeWaiter(ch)
		return models.Position{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, ctx.Err())
	}
}

func (f *DeviceFeed) removeWaiter(ch chan models.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.positionWaiters {
		if w == ch {
			f.positionWaiters = append(f.positionWaiters[:i:i], f.positionWaiters[i+1:]...)
			return
		}
	}
}

func (f *DeviceFeed) WatchPosition(onUpdate func(models.Position), onError func(error)) (func(), error) {
	if onUpdate == nil {
		return nil, fmt.Errorf("position callback is required")
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.positionWatch[id] = positionWatcher{onUpdate: onUpdate, onError: onError}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.positionWatch, id)
			f.mu.Unlock()
		})
	}, nil
}

// WatchBattery registers onChange and replays the last reading to it if that
// reading is younger than the max age.
func (f *DeviceFeed) WatchBattery(onChange func(models.BatteryReading)) (func(), error) {
	if onChange == nil {
		return nil, fmt.Errorf("battery callback is required")
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.batteryWatch[id] = onChange
	var last *models.BatteryReading
	if f.lastBattery != nil && f.clock.Now().Sub(f.lastBatteryAt) <= f.maxAge {
		r := *f.lastBattery
		last = &r
	}
	f.mu.Unlock()

	if last != nil {
		onChange(*last)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.batteryWatch, id)
			f.mu.Unlock()
		})
	}, nil
}

func (f *DeviceFeed) PushPosition(p models.Position) {
	f.mu.Lock()
	f.lastPosition = &p
	f.lastPositionAt = f.clock.Now()
	waiters := f.positionWaiters
	f.positionWaiters = nil
	watchers := make([]positionWatcher, 0, len(f.positionWatch))
	for _, w := range f.positionWatch {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, ch := range waiters {
		ch <- p
	}
	for _, w := range watchers {
		w.onUpdate(p)
	}
}

func (f *DeviceFeed) PushBattery(r models.BatteryReading) {
	f.mu.Lock()
	f.lastBattery = &r
	f.lastBatteryAt = f.clock.Now()
	watchers := make([]func(models.BatteryReading), 0, len(f.batteryWatch))
	for _, w := range f.batteryWatch {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		w(r)
	}
}

// ReportPositionError forwards a device-side location failure, such as a
// revoked permission, to the position watchers.
func (f *DeviceFeed) ReportPositionError(err error) {
	f.mu.Lock()
	watchers := make([]positionWatcher, 0, len(f.positionWatch))
	for _, w := range f.positionWatch {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	for _, w := range watchers {
		if w.onError != nil {
			w.onError(err)
		}
	}
}

// LastBattery returns the most recent battery reading, if any.
func (f *DeviceFeed) LastBattery() (models.BatteryReading, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastBattery == nil {
		return models.BatteryReading{}, false
	}
	return *f.lastBattery, true
}
