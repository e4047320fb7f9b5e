// Package metrics provides Prometheus instrumentation for the engine core:
// pool occupancy, batch task durations/outcomes, resource manager lease
// counts, and strand queue depth (SPEC_FULL.md §4 "ambient stack carried
// regardless of non-goals").
//
// Grounded on the teacher's internal/infra/metrics/metrics.go: the same
// promauto package-level var style, namespaced counters/gauges/histograms,
// ported from inference/task/peer metrics to this engine's own subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Storage (C2) ───────────────────────────────────────────────────────────

// PoolOccupancy tracks live-slot occupancy per typed pool.
var PoolOccupancy = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "eeng",
	Name:      "pool_occupancy",
	Help:      "Number of live (non-free) slots in a typed pool.",
}, []string{"type"})

// PoolCapacity tracks allocated capacity per typed pool.
var PoolCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "eeng",
	Name:      "pool_capacity",
	Help:      "Allocated slot capacity of a typed pool.",
}, []string{"type"})

// ─── Resource Manager (C6) ──────────────────────────────────────────────────

// ResourceLeases tracks currently outstanding soft-reference leases.
var ResourceLeases = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "eeng",
	Name:      "resource_leases",
	Help:      "Outstanding soft-reference leases held on loaded assets.",
}, []string{"asset_type"})

// ResourceLoads tracks completed asset load tasks by outcome.
var ResourceLoads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "eeng",
	Name:      "resource_loads_total",
	Help:      "Total asset load attempts by outcome.",
}, []string{"outcome"})

// ─── Batch Registry (C7) ────────────────────────────────────────────────────

// BatchTaskDuration tracks batch task (load/unload/save) duration in
// seconds.
var BatchTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "eeng",
	Name:      "batch_task_duration_seconds",
	Help:      "Batch task duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"task"})

// BatchTasksCompleted tracks completed batch tasks by task kind and
// outcome.
var BatchTasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "eeng",
	Name:      "batch_tasks_completed_total",
	Help:      "Total completed batch tasks by task kind and outcome.",
}, []string{"task", "outcome"})

// BatchesByState tracks the number of batches currently in each lifecycle
// state.
var BatchesByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "eeng",
	Name:      "batches_by_state",
	Help:      "Number of batches currently in each lifecycle state.",
}, []string{"state"})

// ─── Concurrency (C9) ───────────────────────────────────────────────────────

// StrandQueueDepth tracks the number of pending tasks queued on a strand.
var StrandQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "eeng",
	Name:      "strand_queue_depth",
	Help:      "Number of tasks currently queued on a strand.",
}, []string{"strand"})

// ThreadPoolActiveWorkers tracks workers currently executing a task.
var ThreadPoolActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "eeng",
	Name:      "thread_pool_active_workers",
	Help:      "Number of thread pool workers currently executing a task.",
})

// ─── Edit Command Pipeline (C8) ─────────────────────────────────────────────

// CommandsExecuted tracks executed edit commands by command name and
// resulting status.
var CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "eeng",
	Name:      "edit_commands_executed_total",
	Help:      "Total edit commands executed, by command name and status.",
}, []string{"command", "status"})
