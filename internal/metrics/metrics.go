// Package metrics exposes the scheduler's runtime counters as Prometheus
// collectors. Nothing here starts an HTTP server or registers a handler —
// the runtime has no wire surface of its own; a consuming application
// wires these into its own /metrics endpoint via promauto's default
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoutinesSpawned counts every call to Spawn/SpawnWith.
	RoutinesSpawned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routines_spawned_total",
			Help: "Total number of routines spawned.",
		},
	)

	// RoutinesCompleted counts routines whose body has returned.
	RoutinesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routines_completed_total",
			Help: "Total number of routines that ran to completion.",
		},
	)

	// RoutinesPanicked counts routines whose body panicked and was
	// recovered at the advance boundary.
	RoutinesPanicked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "routines_panicked_total",
			Help: "Total number of routine bodies that panicked.",
		},
	)

	// ReadyQueueDepth is the current number of ready (queued, not yet
	// running) routines per worker context.
	ReadyQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "routines_ready_queue_depth",
			Help: "Current number of routines waiting to be advanced, per context.",
		},
		[]string{"context_id"},
	)

	// SuspendedDepth is the current number of parked routines per worker
	// context.
	SuspendedDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "routines_suspended_depth",
			Help: "Current number of parked routines, per context.",
		},
		[]string{"context_id"},
	)

	// ParkLatency observes how long a routine spent parked before being
	// woken, from Park to the matching Resume-driven requeue.
	ParkLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routines_park_latency_seconds",
			Help:    "Time a routine spent parked before being resumed.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 12),
		},
	)

	// ActiveContexts is the number of worker contexts currently running.
	ActiveContexts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "routines_active_contexts",
			Help: "Current number of running worker contexts.",
		},
	)
)

// SetReadyQueueDepth updates the ready-queue gauge for one context.
func SetReadyQueueDepth(contextID string, depth float64) {
	ReadyQueueDepth.WithLabelValues(contextID).Set(depth)
}

// SetSuspendedDepth updates the suspended-set gauge for one context.
func SetSuspendedDepth(contextID string, depth float64) {
	SuspendedDepth.WithLabelValues(contextID).Set(depth)
}
