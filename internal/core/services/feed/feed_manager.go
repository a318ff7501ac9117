// Package feed forwards status store changes to an external event publisher in batches.
package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
	"github.com/lcalzada-xor/fleetmap/internal/telemetry"
)

var _ ports.StatusObserver = (*FeedManager)(nil)

// FeedManager buffers status changes and publishes the latest record per
// device on every flush.
type FeedManager struct {
	publisher ports.EventPublisher
	events    chan ports.StatusEvent
	batchSize int
	interval  time.Duration
	enabled   bool
	mu        sync.RWMutex
	log       zerolog.Logger
	done      chan struct{}
}

// NewFeedManager creates a feed with the given queue size and flush interval.
func NewFeedManager(publisher ports.EventPublisher, bufferSize int, interval time.Duration) *FeedManager {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &FeedManager{
		publisher: publisher,
		events:    make(chan ports.StatusEvent, bufferSize),
		batchSize: 100,
		interval:  interval,
		enabled:   true,
		log:       logger.WithComponent("feed"),
		done:      make(chan struct{}),
	}
}

// OnStatusChanged queues one event per changed device. It never blocks the
// store; events that do not fit in the queue are dropped and counted.
func (f *FeedManager) OnStatusChanged(_ context.Context, change domain.StatusChange) {
	if !f.IsEnabled() {
		return
	}
	for _, id := range change.DeviceIDs {
		ev := ports.StatusEvent{DeviceID: id, Version: change.Version, Record: change.Records[id]}
		select {
		case f.events <- ev:
		default:
			telemetry.FeedDropped.Inc()
		}
	}
}

// IsEnabled returns whether changes are being forwarded.
func (f *FeedManager) IsEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}

// SetEnabled toggles forwarding.
func (f *FeedManager) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

// Start runs the flush loop until ctx is done. The buffer is flushed once more
// on the way out.
func (f *FeedManager) Start(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	buffer := make(map[string]ports.StatusEvent)

	go func() {
		defer close(f.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				f.drain(buffer)
				f.flush(context.WithoutCancel(ctx), buffer)
				return
			case ev := <-f.events:
				keepLatest(buffer, ev)
				if len(buffer) >= f.batchSize {
					f.flush(ctx, buffer)
					buffer = make(map[string]ports.StatusEvent)
				}
			case <-ticker.C:
				if len(buffer) > 0 {
					f.flush(ctx, buffer)
					buffer = make(map[string]ports.StatusEvent)
				}
			}
		}
	}()
}

// Done is closed once the flush loop has exited.
func (f *FeedManager) Done() <-chan struct{} {
	return f.done
}

func (f *FeedManager) drain(buffer map[string]ports.StatusEvent) {
	for {
		select {
		case ev := <-f.events:
			keepLatest(buffer, ev)
		default:
			return
		}
	}
}

func keepLatest(buffer map[string]ports.StatusEvent, ev ports.StatusEvent) {
	if prev, ok := buffer[ev.DeviceID]; ok && prev.Version > ev.Version {
		return
	}
	buffer[ev.DeviceID] = ev
}

func (f *FeedManager) flush(ctx context.Context, buffer map[string]ports.StatusEvent) {
	if len(buffer) == 0 || f.publisher == nil {
		return
	}
	events := make([]ports.StatusEvent, 0, len(buffer))
	for _, ev := range buffer {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Version != events[j].Version {
			return events[i].Version < events[j].Version
		}
		return events[i].DeviceID < events[j].DeviceID
	})
	if err := f.publisher.Publish(ctx, events); err != nil {
		f.log.Error().Err(err).Int("events", len(events)).Msg("Failed to publish status events")
	}
}
