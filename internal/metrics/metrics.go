// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for LLMAttempts.
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
	OutcomeRejected  = "rejected"
	OutcomeEmpty     = "empty"
	OutcomeTransport = "transport_error"
)

var (
	LLMAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtm_llm_attempts_total",
			Help: "Outbound generation attempts by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	LLMAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gtm_llm_attempt_duration_seconds",
			Help:    "Duration of a single generation attempt in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"stage"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtm_pipeline_runs_total",
			Help: "Pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gtm_pipeline_run_duration_seconds",
			Help:    "Wall time of a pipeline run in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"status"},
	)

	DegradedDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtm_degraded_documents_total",
			Help: "Documents replaced by their stage fallback",
		},
		[]string{"stage"},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gtm_pipeline_runs_active",
			Help: "Number of pipeline runs in progress",
		},
	)
)
