package watcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/flashline-core/internal/device"
	"github.com/nerrad567/flashline-core/internal/events"
)

// Poll interval bounds.
const (
	MinInterval     = 1 * time.Second
	MaxInterval     = 3 * time.Second
	DefaultInterval = 2 * time.Second
)

// Enumerator lists devices visible to one tool. adapter.CLI satisfies it.
type Enumerator interface {
	Devices(ctx context.Context, mode device.ConnectionType) ([]device.Status, error)
}

// Subscriber is notified after every tick. all is the merged list; added
// holds serials absent on the previous tick. OnDevices runs on the watcher
// goroutine and must return quickly.
type Subscriber interface {
	OnDevices(ctx context.Context, all []device.Status, added []string)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, all []device.Status, added []string)

// OnDevices implements Subscriber.
func (f SubscriberFunc) OnDevices(ctx context.Context, all []device.Status, added []string) {
	f(ctx, all, added)
}

// Logger defines the logging interface used by the Watcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Watcher is the device presence loop.
type Watcher struct {
	enum     Enumerator
	registry *device.Registry
	sink     events.Sink
	logger   Logger
	interval time.Duration

	mu          sync.RWMutex
	subscribers []Subscriber
}

// New creates a watcher. The interval is clamped to [MinInterval, MaxInterval];
// zero selects DefaultInterval. A nil registry gets a private one.
func New(enum Enumerator, registry *device.Registry, sink events.Sink, interval time.Duration, logger Logger) *Watcher {
	if registry == nil {
		registry = device.NewRegistry()
	}
	if sink == nil {
		sink = events.Nop{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Watcher{
		enum:     enum,
		registry: registry,
		sink:     sink,
		logger:   logger,
		interval: ClampInterval(interval),
	}
}

// ClampInterval keeps a poll interval within bounds.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	}
	return d
}

// Interval returns the effective poll interval.
func (w *Watcher) Interval() time.Duration { return w.interval }

// Subscribe registers a subscriber for every subsequent tick.
func (w *Watcher) Subscribe(s Subscriber) {
	w.mu.Lock()
	w.subscribers = append(w.subscribers, s)
	w.mu.Unlock()
}

// Run polls immediately and then once per interval until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("device watcher started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Poll(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("device watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll performs one tick and returns the merged device list.
func (w *Watcher) Poll(ctx context.Context) []device.Status {
	var adbDevices, fastbootDevices []device.Status

	var g errgroup.Group
	g.Go(func() error {
		adbDevices = w.enumerate(ctx, device.ConnectionADB)
		return nil
	})
	g.Go(func() error {
		fastbootDevices = w.enumerate(ctx, device.ConnectionFastboot)
		return nil
	})
	_ = g.Wait() //nolint:errcheck // enumerations never return errors

	merged := Merge(adbDevices, fastbootDevices)
	added, removed := w.registry.Replace(merged)

	if len(added) > 0 || len(removed) > 0 {
		w.logger.Debug("device presence changed", "added", added, "removed", removed, "total", len(merged))
	}

	w.sink.Publish(events.ChannelDeviceStatus, events.DeviceStatus{Devices: merged, Added: added})

	w.mu.RLock()
	subscribers := w.subscribers
	w.mu.RUnlock()
	for _, s := range subscribers {
		s.OnDevices(ctx, merged, added)
	}
	return merged
}

func (w *Watcher) enumerate(ctx context.Context, mode device.ConnectionType) []device.Status {
	devices, err := w.enum.Devices(ctx, mode)
	if err != nil {
		w.logger.Debug("device enumeration failed", "mode", mode, "error", err)
		return nil
	}
	return devices
}

// Merge combines adb and fastboot listings. A serial present in both keeps
// its adb entry. adb entries come first in listing order, followed by
// fastboot-only entries in their listing order.
func Merge(adbDevices, fastbootDevices []device.Status) []device.Status {
	merged := make([]device.Status, 0, len(adbDevices)+len(fastbootDevices))
	seen := make(map[string]struct{}, len(adbDevices)+len(fastbootDevices))

	for _, list := range [][]device.Status{adbDevices, fastbootDevices} {
		for _, d := range list {
			if _, dup := seen[d.Serial]; dup {
				continue
			}
			seen[d.Serial] = struct{}{}
			merged = append(merged, d)
		}
	}
	return merged
}
