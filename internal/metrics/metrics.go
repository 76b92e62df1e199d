// Package metrics exposes Prometheus instrumentation for the resolution
// pipeline: cache efficiency, acquisition outcomes, relay traffic and
// in-flight pressure.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Total number of variant cache lookups",
		},
		[]string{"result"}, // "hit", "compat_hit", "miss"
	)

	CacheWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_writes_total",
			Help: "Total number of variant cache upserts",
		},
	)

	// Acquisition Metrics
	AcquisitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acquisition_duration_seconds",
			Help:    "Duration of media acquisition attempts in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"kind", "outcome"}, // kind: "video", "audio", "animation"; outcome: "ok", "fallback", "error"
	)

	AcquisitionBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acquisition_artifact_bytes",
			Help:    "Size of produced artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 12), // 1MiB .. 2GiB
		},
		[]string{"kind"},
	)

	FallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_attempts_total",
			Help: "Total number of cascade steps attempted after the primary recipe failed",
		},
		[]string{"kind"},
	)

	// Delivery Metrics
	DirectDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_direct_total",
			Help: "Total number of artifacts delivered by direct upload",
		},
	)

	RelayDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_relay_total",
			Help: "Total number of artifacts delivered through the relay path",
		},
	)

	RelayFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_relay_failures_total",
			Help: "Total number of relay failures by step",
		},
		[]string{"step"},
	)

	// Concurrency Metrics
	InflightResolutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inflight_resolutions",
			Help: "Current number of resolutions holding a production lock",
		},
	)

	HeavyJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heavy_jobs_active",
			Help: "Current number of acquisitions holding a download slot",
		},
	)
)
