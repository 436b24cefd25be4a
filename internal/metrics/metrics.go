// Package metrics exposes Prometheus instrumentation for the analysis queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed counts terminal job outcomes per job type.
	// Outcomes: completed, retried, failed, cancelled, skipped.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "complycheck_jobs_processed_total",
		Help: "Job outcomes observed by the queue processor.",
	}, []string{"type", "outcome"})

	QueueRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "complycheck_queue_remaining",
		Help: "Queue length after the latest processor pass.",
	})

	StaleRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "complycheck_stale_jobs_requeued_total",
		Help: "Processing jobs reclaimed by the stale sweeper.",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "complycheck_inference_duration_seconds",
		Help:    "Wall-clock duration of AI inference calls.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider"})
)
