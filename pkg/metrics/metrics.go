// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-xmss.
//
// go-xmss is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for XMSS key lifecycle
// operations: operation counts and latencies, the remaining signature budget
// per key, stateful commits, rollbacks and handle invalidations.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all metrics
	Namespace = "xmss"

	// Label names
	LabelOperation = "operation"
	LabelKey       = "key"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelOutcome   = "outcome"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Rollback outcomes
	OutcomeRolledBack     = "rolled_back"
	OutcomeRollbackFailed = "rollback_failed"

	// Operation names
	OpGenerate           = "generate"
	OpImport             = "import"
	OpCalculatePublicKey = "calculate_public_key"
	OpReserve            = "reserve"
	OpSign               = "sign"
	OpVerify             = "verify"
	OpSplit              = "split"
	OpMerge              = "merge"
	OpPurge              = "purge"
)

var (
	// OperationsTotal tracks lifecycle operations by type and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of XMSS key operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of lifecycle operations in seconds.
	// Public key computation of an h=20 key takes minutes, hence the wide
	// upper buckets.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of XMSS key operations in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120, 600, 1800},
		},
		[]string{LabelOperation},
	)

	// SignaturesRemaining is the reserved plus unreserved budget of a key.
	SignaturesRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "signatures_remaining",
			Help:      "Leaf indices still available to a key handle",
		},
		[]string{LabelKey},
	)

	// LeafIndicesReserved counts indices durably marked as used.
	LeafIndicesReserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "leaf_indices_reserved_total",
			Help:      "Total number of leaf indices reserved for signing",
		},
		[]string{LabelKey},
	)

	// StatefulCommitsTotal counts compare-and-swap writes of the stateful part.
	StatefulCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stateful_commits_total",
			Help:      "Total number of stateful part commits by status",
		},
		[]string{LabelKey, LabelStatus},
	)

	// RollbacksTotal counts rollbacks of multi-step operations by outcome.
	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rollbacks_total",
			Help:      "Total number of rollbacks by operation and outcome",
		},
		[]string{LabelOperation, LabelOutcome},
	)

	// InvalidationsTotal counts key handles invalidated after a failed commit.
	InvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "invalidations_total",
			Help:      "Total number of key handles invalidated",
		},
		[]string{LabelKey},
	)

	// ErrorsTotal tracks errors by operation and error type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// Goroutines tracks the current number of goroutines.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// MemorySysBytes tracks the total bytes of memory obtained from the OS.
	MemorySysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_sys_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)

	// GCPauseTotalSeconds tracks the cumulative time spent in GC pauses.
	GCPauseTotalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "gc_pause_total_seconds",
			Help:      "Cumulative time spent in GC stop-the-world pauses",
		},
	)

	// UptimeSeconds tracks the time since the resource collector started.
	UptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the resource collector started",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records an operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	sig, err := key.Sign(msg)
//	status := metrics.StatusSuccess
//	if err != nil {
//	    status = metrics.StatusError
//	}
//	metrics.RecordOperation(metrics.OpSign, status, time.Since(start).Seconds())
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records an error of errorType (e.g. "persistence",
// "capacity_exhausted") during operation.
func RecordError(operation, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetSignaturesRemaining publishes the remaining budget of a key.
func SetSignaturesRemaining(key string, remaining uint64) {
	if !enabled.Load() {
		return
	}
	SignaturesRemaining.WithLabelValues(key).Set(float64(remaining))
}

// AddReserved counts count indices reserved by a successful commit.
func AddReserved(key string, count uint32) {
	if !enabled.Load() {
		return
	}
	LeafIndicesReserved.WithLabelValues(key).Add(float64(count))
}

// RecordCommit records a stateful part compare-and-swap.
func RecordCommit(key, status string) {
	if !enabled.Load() {
		return
	}
	StatefulCommitsTotal.WithLabelValues(key, status).Inc()
}

// RecordRollback records a rollback attempt and its outcome.
func RecordRollback(operation, outcome string) {
	if !enabled.Load() {
		return
	}
	RollbacksTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordInvalidation records a key handle invalidation.
func RecordInvalidation(key string) {
	if !enabled.Load() {
		return
	}
	InvalidationsTotal.WithLabelValues(key).Inc()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
