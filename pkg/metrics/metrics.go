// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationRunsTotal tracks generation runs by engine and outcome
	GenerationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "generation",
			Name:      "runs_total",
			Help:      "Total number of document generation runs by engine and outcome",
		},
		[]string{"engine", "registrar", "outcome"},
	)

	// GenerationDuration tracks run duration in seconds
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "generation",
			Name:      "run_duration_seconds",
			Help:      "Duration of document generation runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"engine", "registrar"},
	)

	// DocumentsGenerated tracks individual documents packed into archives
	DocumentsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "generation",
			Name:      "documents_total",
			Help:      "Total number of documents packed into registrar archives",
		},
		[]string{"engine", "registrar"},
	)

	// ConversionDuration tracks TIFF conversion duration
	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "conversion",
			Name:      "duration_seconds",
			Help:      "Duration of PDF/image to TIFF conversions in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"source_format"},
	)

	// ArchiveBytes tracks the size of uploaded archives
	ArchiveBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "archive",
			Name:      "bytes",
			Help:      "Size in bytes of uploaded registrar archives",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"engine", "registrar"},
	)

	// StageFailuresTotal tracks pipeline failures by stage
	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "generation",
			Name:      "stage_failures_total",
			Help:      "Total number of pipeline failures by stage",
		},
		[]string{"engine", "stage"},
	)

	// ReconciledClaimsTotal tracks nominee claim rows expired by the sweep
	ReconciledClaimsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "reconcile",
			Name:      "claims_total",
			Help:      "Total number of stale nominee document claims expired",
		},
	)
)
