// Package metrics exposes Prometheus collectors for the fetch service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchRequestsTotal   *prometheus.CounterVec
	fetchAttemptsTotal   prometheus.Counter
	fetchRetriesTotal    prometheus.Counter
	fetchBytesTotal      prometheus.Counter
	fetchDurationSeconds prometheus.Histogram
	cacheEventsTotal     *prometheus.CounterVec
	dedupeSharedTotal    prometheus.Counter
	inflightFetches      prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetchguard_requests_total",
				Help: "Total number of fetch requests, labeled by outcome code.",
			},
			[]string{"outcome"},
		)

		fetchAttemptsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fetchguard_attempts_total",
				Help: "Total number of network attempts, including retries.",
			},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fetchguard_retries_total",
				Help: "Total number of retried attempts.",
			},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fetchguard_bytes_total",
				Help: "Total number of response body bytes read.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fetchguard_fetch_duration_seconds",
				Help:    "Histogram of end-to-end fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		cacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetchguard_cache_events_total",
				Help: "Total cache events, labeled by kind (hit, miss, set, eviction, skip).",
			},
			[]string{"kind"},
		)

		dedupeSharedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fetchguard_dedupe_shared_total",
				Help: "Total fetches that shared another caller's in-flight result.",
			},
		)

		inflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fetchguard_inflight_fetches",
				Help: "Number of fetches currently holding a network attempt.",
			},
		)
	})
}

// RecordRequest increments the per-outcome request counter. Outcome is the
// stable error code, or "ok" for success and "cache_hit" for cache hits.
func RecordRequest(outcome string) {
	if fetchRequestsTotal == nil {
		return
	}
	fetchRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordAttempt counts one network attempt.
func RecordAttempt() {
	if fetchAttemptsTotal == nil {
		return
	}
	fetchAttemptsTotal.Inc()
}

// RecordRetry counts one retried attempt.
func RecordRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// RecordBytes counts body bytes read off the wire.
func RecordBytes(n int64) {
	if fetchBytesTotal == nil || n <= 0 {
		return
	}
	fetchBytesTotal.Add(float64(n))
}

// ObserveFetchDuration records the end-to-end latency of one fetch.
func ObserveFetchDuration(d time.Duration) {
	if fetchDurationSeconds == nil {
		return
	}
	fetchDurationSeconds.Observe(d.Seconds())
}

// RecordCacheEvent counts a cache hit, miss, set, eviction, or skip.
func RecordCacheEvent(kind string) {
	if cacheEventsTotal == nil {
		return
	}
	cacheEventsTotal.WithLabelValues(kind).Inc()
}

// RecordDedupeShared counts a caller that piggybacked on an in-flight fetch.
func RecordDedupeShared() {
	if dedupeSharedTotal == nil {
		return
	}
	dedupeSharedTotal.Inc()
}

// IncInflight marks a network attempt as started.
func IncInflight() {
	if inflightFetches == nil {
		return
	}
	inflightFetches.Inc()
}

// DecInflight marks a network attempt as settled.
func DecInflight() {
	if inflightFetches == nil {
		return
	}
	inflightFetches.Dec()
}
