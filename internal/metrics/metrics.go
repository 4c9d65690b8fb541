package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripline",
			Name:      "sync_operations_total",
			Help:      "Sync service operations by name and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	staleSnapshots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tripline",
			Name:      "stale_snapshots_dropped_total",
			Help:      "Pushed trip snapshots discarded as stale by version.",
		},
	)

	versionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tripline",
			Name:      "version_conflicts_total",
			Help:      "Conditional trip writes rejected by version check.",
		},
	)

	tripResyncs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tripline",
			Name:      "trip_resyncs_total",
			Help:      "Single-trip reloads forced by a failed remote write.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripline",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncOperations, staleSnapshots, versionConflicts, tripResyncs, httpRequests)
	})
}

// IncSyncOp counts one sync service operation with its outcome.
func IncSyncOp(operation, outcome string) {
	syncOperations.WithLabelValues(operation, outcome).Inc()
}

// IncStaleSnapshot counts a pushed snapshot dropped as stale.
func IncStaleSnapshot() {
	staleSnapshots.Inc()
}

// IncVersionConflict counts a rejected conditional write.
func IncVersionConflict() {
	versionConflicts.Inc()
}

// IncTripResync counts a forced single-trip reload.
func IncTripResync() {
	tripResyncs.Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
