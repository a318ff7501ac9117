package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ProbesTotal counts finished probe dispatches.
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetmap",
			Name:      "probes_total",
			Help:      "Total number of probe dispatches by shape and outcome",
		},
		[]string{"shape", "outcome"},
	)

	// ProbesInFlight tracks single-device probes awaiting a response.
	ProbesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fleetmap",
			Name:      "probes_in_flight",
			Help:      "Number of single-device probes currently in flight",
		},
	)

	// ProbeDuration measures directory round trips per probe shape.
	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleetmap",
			Name:      "probe_duration_seconds",
			Help:      "Duration of probe requests against the directory",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"shape"},
	)

	// TaskPolls counts status checks of asynchronous probe tasks.
	TaskPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetmap",
			Name:      "task_polls_total",
			Help:      "Total number of async probe task status checks",
		},
		[]string{"state"},
	)

	// StoreVersion exposes the status store version.
	StoreVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fleetmap",
			Name:      "status_store_version",
			Help:      "Current version of the status record store",
		},
	)

	// DataCenterStatus is 1 for the current aggregate status of each datacenter.
	DataCenterStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fleetmap",
			Name:      "datacenter_status",
			Help:      "Aggregate status per datacenter (1 for the active status)",
		},
		[]string{"datacenter", "status"},
	)

	// WebSocketClients tracks connected map clients.
	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fleetmap",
			Name:      "websocket_clients",
			Help:      "Number of connected map rendering clients",
		},
	)

	// FeedDropped counts status changes dropped because the feed buffer was full.
	FeedDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fleetmap",
			Name:      "feed_dropped_total",
			Help:      "Status changes dropped by the event feed",
		},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// This function is idempotent and can be called multiple times safely.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(ProbesTotal)
		prometheus.DefaultRegisterer.Register(ProbesInFlight)
		prometheus.DefaultRegisterer.Register(ProbeDuration)
		prometheus.DefaultRegisterer.Register(TaskPolls)
		prometheus.DefaultRegisterer.Register(StoreVersion)
		prometheus.DefaultRegisterer.Register(DataCenterStatus)
		prometheus.DefaultRegisterer.Register(WebSocketClients)
		prometheus.DefaultRegisterer.Register(FeedDropped)
	})
}
