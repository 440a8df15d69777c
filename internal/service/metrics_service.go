package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the portal.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	embeddingFailures prometheus.Counter
	searchFallbacks   prometheus.Counter
	ingestRows        *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	embeddingFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "embedding_failures_total",
		Help: "Events persisted without a vector because the provider failed",
	})

	searchFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "semantic_search_fallbacks_total",
		Help: "Semantic searches served by the brute-force cosine fallback",
	})

	ingestRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_ingest_rows_total",
		Help: "Spreadsheet ingest rows by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		embeddingFailures, searchFallbacks, ingestRows, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		embeddingFailures: embeddingFailures,
		searchFallbacks:   searchFallbacks,
		ingestRows:        ingestRows,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records request count and latency.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (s *MetricsService) RecordCacheLookup(hit bool) {
	if hit {
		s.cacheHits.Inc()
		return
	}
	s.cacheMisses.Inc()
}

// RecordEmbeddingFailure counts an event persisted without a vector.
func (s *MetricsService) RecordEmbeddingFailure() {
	s.embeddingFailures.Inc()
}

// RecordSearchFallback counts a semantic search served by the cosine fallback.
func (s *MetricsService) RecordSearchFallback() {
	s.searchFallbacks.Inc()
}

// RecordIngestRow counts one ingest row by outcome (inserted/updated/skipped).
func (s *MetricsService) RecordIngestRow(outcome string) {
	s.ingestRows.WithLabelValues(outcome).Inc()
}
