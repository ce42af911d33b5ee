// Package metrics exposes Prometheus collectors for the finder service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchesTotal              *prometheus.CounterVec
	discoveryPagesTotal        *prometheus.CounterVec
	cacheReadsTotal            *prometheus.CounterVec
	cacheWritesTotal           *prometheus.CounterVec
	syncJobsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_searches_total",
				Help: "Total search invocations, labeled by mode (single, all, cached) and status.",
			},
			[]string{"mode", "status"},
		)

		discoveryPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_discovery_pages_total",
				Help: "Total discovery API pages fetched, labeled by status.",
			},
			[]string{"status"},
		)

		cacheReadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_cache_reads_total",
				Help: "Total cache partition reads, labeled by outcome (hit, miss, error).",
			},
			[]string{"outcome"},
		)

		cacheWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_cache_writes_total",
				Help: "Total cache partition writes, labeled by status.",
			},
			[]string{"status"},
		)

		syncJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finder_sync_jobs_total",
				Help: "Total city sync jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and status code.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "code"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearch increments the search counter.
func ObserveSearch(mode, status string) {
	searchesTotal.WithLabelValues(mode, status).Inc()
}

// ObserveDiscoveryPage increments the page fetch counter.
func ObserveDiscoveryPage(status string) {
	discoveryPagesTotal.WithLabelValues(status).Inc()
}

// ObserveCacheRead increments the cache read counter.
func ObserveCacheRead(outcome string) {
	cacheReadsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheWrite increments the cache write counter.
func ObserveCacheWrite(status string) {
	cacheWritesTotal.WithLabelValues(status).Inc()
}

// ObserveSyncJob increments the sync job counter.
func ObserveSyncJob(status string) {
	syncJobsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method string, code int, duration time.Duration) {
	httpRequestDurationSeconds.WithLabelValues(method, strconv.Itoa(code)).Observe(duration.Seconds())
}
