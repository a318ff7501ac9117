package ports

import (
	"context"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

// StatusObserver is notified after every status store mutation.
type StatusObserver interface {
	OnStatusChanged(ctx context.Context, change domain.StatusChange)
}

// TopologyObserver is notified after the cached topology changes.
type TopologyObserver interface {
	OnTopologyChanged(ctx context.Context, topology domain.Topology)
}

// StatusReader exposes read access to the status store.
type StatusReader interface {
	Get(id string) (domain.StatusRecord, bool)
	Version() uint64
	Snapshot() domain.StatusSnapshot
}

// TopologyReader exposes the cached topology.
type TopologyReader interface {
	Current() domain.Topology
}

// StatusEvent is one entry of the outbound status-change feed.
type StatusEvent struct {
	DeviceID string              `json:"device_id"`
	Version  uint64              `json:"version"`
	Record   domain.StatusRecord `json:"record"`
}

// EventPublisher ships status events to an external broker.
type EventPublisher interface {
	Publish(ctx context.Context, events []StatusEvent) error
	Close() error
}

// StatusStore is the write side of the status store, used only by the probe dispatcher.
type StatusStore interface {
	StatusReader
	Set(ctx context.Context, id string, record domain.StatusRecord)
	SetMany(ctx context.Context, records map[string]domain.StatusRecord)
	TryBeginProbe(ctx context.Context, id string) bool
}
