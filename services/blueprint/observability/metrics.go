// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the blueprint core.
//
// # Description
//
// Counters and histograms covering the write path (snapshot persistence per
// backend), the feedback path (recalibrations by kind and direction), and
// the narrative path (enhancement outcomes). Exposed via the /metrics
// endpoint for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "originseed"

const blueprintSubsystem = "blueprint"

// BlueprintMetrics holds all Prometheus metrics for the blueprint core.
type BlueprintMetrics struct {
	// SnapshotsWrittenTotal counts snapshot writes by backend and status.
	// Labels: backend (flat, graph), status (success, error)
	SnapshotsWrittenTotal *prometheus.CounterVec

	// RecalibrationsTotal counts applied feedback events.
	// Labels: kind (likert, card, reflection), direction (strengthened,
	// softened, stable)
	RecalibrationsTotal *prometheus.CounterVec

	// EnhancementsTotal counts external narrative generation attempts.
	// Labels: outcome (enhanced, fallback)
	EnhancementsTotal *prometheus.CounterVec

	// ProfileGenerationSeconds measures end-to-end profile generation.
	// Labels: source (foundational, regeneration, refinement)
	ProfileGenerationSeconds *prometheus.HistogramVec

	// GraphDegradedTotal counts transitions of the graph backend into a
	// degraded state.
	GraphDegradedTotal prometheus.Counter

	// SnapshotChainDepth observes the chain depth seen on history reads.
	SnapshotChainDepth prometheus.Histogram
}

// DefaultMetrics is the process-wide metrics instance, initialized by
// InitMetrics().
var DefaultMetrics *BlueprintMetrics

var initOnce sync.Once

// InitMetrics initializes and registers the default metrics instance.
// Safe to call more than once; registration happens exactly once.
func InitMetrics() *BlueprintMetrics {
	initOnce.Do(func() {
		DefaultMetrics = &BlueprintMetrics{
			SnapshotsWrittenTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: blueprintSubsystem,
					Name:      "snapshots_written_total",
					Help:      "Snapshot writes by backend and status",
				},
				[]string{"backend", "status"},
			),

			RecalibrationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: blueprintSubsystem,
					Name:      "recalibrations_total",
					Help:      "Applied feedback events by kind and resulting direction",
				},
				[]string{"kind", "direction"},
			),

			EnhancementsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: blueprintSubsystem,
					Name:      "enhancements_total",
					Help:      "External narrative generation attempts by outcome",
				},
				[]string{"outcome"},
			),

			ProfileGenerationSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: blueprintSubsystem,
					Name:      "profile_generation_seconds",
					Help:      "End-to-end profile generation duration in seconds",
					Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
				},
				[]string{"source"},
			),

			GraphDegradedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: blueprintSubsystem,
					Name:      "graph_degraded_total",
					Help:      "Transitions of the graph backend into a degraded state",
				},
			),

			SnapshotChainDepth: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: blueprintSubsystem,
					Name:      "snapshot_chain_depth",
					Help:      "Chain depth observed on history reads",
					Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
				},
			),
		}
	})
	return DefaultMetrics
}

// Metrics returns the default instance, initializing it on first use.
func Metrics() *BlueprintMetrics {
	return InitMetrics()
}
