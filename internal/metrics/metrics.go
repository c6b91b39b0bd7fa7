// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the denormalization engine:
// - Change-event propagation outcomes and per-collection update counts
// - Backfill runs, per-collection scan/update counters, duration
// - Document-store batch commit sizes

var (
	// Propagation Metrics
	PropagationEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denorm_propagation_events_total",
			Help: "Total change events handled by the live propagation path",
		},
		[]string{"entity_type", "outcome"}, // outcome: applied, no_change, skipped_deleted, disabled, error
	)

	PropagationUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denorm_propagation_updates_total",
			Help: "Dependent documents updated by live propagation, per collection",
		},
		[]string{"collection"},
	)

	PropagationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "denorm_propagation_duration_seconds",
			Help:    "Duration of one propagation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity_type"},
	)

	// Backfill Metrics
	BackfillRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denorm_backfill_runs_total",
			Help: "Total backfill invocations",
		},
		[]string{"status"}, // completed, in_progress, dry_run, error
	)

	BackfillDocumentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denorm_backfill_documents_processed_total",
			Help: "Documents scanned by backfill, per collection",
		},
		[]string{"collection"},
	)

	BackfillDocumentsUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "denorm_backfill_documents_updated_total",
			Help: "Documents corrected by backfill, per collection",
		},
		[]string{"collection"},
	)

	BackfillDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "denorm_backfill_duration_seconds",
			Help:    "Duration of one backfill invocation in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Document Store Metrics
	StoreBatchCommitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docstore_batch_commits_total",
			Help: "Total atomic batch commits issued by the document store",
		},
	)

	StoreBatchOpsPerCommit = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docstore_batch_ops_per_commit",
			Help:    "Write operations per atomic batch commit",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

// ObserveBackfillDuration records the duration of one backfill invocation.
func ObserveBackfillDuration(start time.Time) {
	BackfillDuration.Observe(time.Since(start).Seconds())
}
