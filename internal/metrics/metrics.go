// Package metrics exposes Prometheus instruments for the time-shift buffer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WritesTotal counts finished write jobs by media type and final state.
	WritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsb_writes_total",
		Help: "Total fragment write jobs by media type and final state",
	}, []string{"media_type", "state"})

	// WriteDuration tracks the store write latency of successful jobs.
	WriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tsb_write_duration_seconds",
		Help:    "Time spent writing a fragment to the store, retries included",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"media_type"})

	// EvictionsTotal counts fragments removed from the buffer.
	EvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsb_evictions_total",
		Help: "Total fragments evicted by media type and reason",
	}, []string{"media_type", "reason"})

	// CulledSecondsTotal accumulates seconds culled from the front of the video track.
	CulledSecondsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsb_culled_seconds_total",
		Help: "Total seconds culled from the front of the video track",
	})

	// StoreDuration reports the buffered duration per track.
	StoreDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tsb_store_duration_seconds",
		Help: "Buffered duration per track",
	}, []string{"media_type"})

	// ReadFailuresTotal counts fragments that could not be read back from the store.
	ReadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsb_read_failures_total",
		Help: "Total failed fragment reads by media type",
	}, []string{"media_type"})
)

// Eviction reasons.
const (
	ReasonWritePressure = "write_pressure"
	ReasonCull          = "cull"
)

// ObserveWrite records the outcome of a write job.
func ObserveWrite(mediaType, state string, duration time.Duration) {
	WritesTotal.WithLabelValues(mediaType, state).Inc()
	if duration > 0 {
		WriteDuration.WithLabelValues(mediaType).Observe(duration.Seconds())
	}
}

// IncEviction records a fragment eviction.
func IncEviction(mediaType, reason string) {
	EvictionsTotal.WithLabelValues(mediaType, reason).Inc()
}

// AddCulledSeconds records seconds culled from the video track.
func AddCulledSeconds(seconds float64) {
	if seconds > 0 {
		CulledSecondsTotal.Add(seconds)
	}
}

// SetStoreDuration records the buffered duration of a track.
func SetStoreDuration(mediaType string, seconds float64) {
	StoreDuration.WithLabelValues(mediaType).Set(seconds)
}

// IncReadFailure records a failed fragment read.
func IncReadFailure(mediaType string) {
	ReadFailuresTotal.WithLabelValues(mediaType).Inc()
}
