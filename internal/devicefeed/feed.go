// Package devicefeed watches one device record through periodic polling and realtime pushes
// and hands every observed version to its listeners from a single goroutine.
package devicefeed

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"arenakiosk/internal/models"
	"arenakiosk/internal/repository"
	"arenakiosk/internal/store"
)

// DefaultInterval is the polling period.
const DefaultInterval = 30 * time.Second

// DeviceGetter loads the device record.
type DeviceGetter interface {
	Get(ctx context.Context, id string) (*models.Device, error)
}

// Listener receives device versions. It runs on the feed goroutine.
type Listener func(ctx context.Context, device models.Device)

// Feed is the polling plus realtime producer for one device.
type Feed struct {
	deviceID   string
	devices    DeviceGetter
	subscriber store.Subscriber
	interval   time.Duration
	logger     *zap.Logger

	listeners []Listener
	updates   chan models.Device
}

// New builds a feed. subscriber may be nil for polling only.
func New(deviceID string, devices DeviceGetter, subscriber store.Subscriber, interval time.Duration, logger *zap.Logger) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Feed{
		deviceID:   deviceID,
		devices:    devices,
		subscriber: subscriber,
		interval:   interval,
		logger:     logger,
		updates:    make(chan models.Device, 8),
	}
}

// AddListener registers l. Must be called before Run.
func (f *Feed) AddListener(l Listener) {
	f.listeners = append(f.listeners, l)
}

// Topic is the realtime topic of the watched record.
func (f *Feed) Topic() string {
	return repository.CollectionDevices + "/" + f.deviceID
}

// Run polls immediately, then every interval, and forwards realtime pushes until ctx ends.
func (f *Feed) Run(ctx context.Context) error {
	if f.subscriber != nil {
		unsubscribe := f.subscriber.Subscribe(f.Topic(), f.push)
		defer unsubscribe()
	}
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.poll(ctx)
		case d := <-f.updates:
			f.dispatch(ctx, d)
		}
	}
}

func (f *Feed) poll(ctx context.Context) {
	d, err := f.devices.Get(ctx, f.deviceID)
	if err != nil {
		f.logger.Warn("device poll failed", zap.String("device_id", f.deviceID), zap.Error(err))
		return
	}
	f.dispatch(ctx, *d)
}

func (f *Feed) push(ev store.Event) {
	if ev.Action == "delete" {
		return
	}
	var d models.Device
	if err := json.Unmarshal(ev.Record, &d); err != nil {
		f.logger.Warn("undecodable device event", zap.String("topic", ev.Topic), zap.Error(err))
		return
	}
	if d.ID != f.deviceID {
		return
	}
	select {
	case f.updates <- d:
	default:
		f.logger.Warn("device update queue full, waiting for next poll", zap.String("device_id", f.deviceID))
	}
}

func (f *Feed) dispatch(ctx context.Context, d models.Device) {
	for _, l := range f.listeners {
		l(ctx, d)
	}
}
