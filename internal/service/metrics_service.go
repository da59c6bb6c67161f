package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns a dedicated Prometheus registry so the portal's
// collectors never collide with anything a library registers globally.
// A nil receiver is valid everywhere and records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
	sessionsPlanned prometheus.Counter
	fanoutQueued    prometheus.Counter
}

func histogram(name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: prometheus.DefBuckets})
}

func histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: prometheus.DefBuckets}, labels)
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// NewMetricsService builds the registry and registers every collector.
func NewMetricsService() *MetricsService {
	m := &MetricsService{registry: prometheus.NewRegistry()}

	m.requestDuration = histogramVec("http_request_duration_seconds", "HTTP request latency in seconds.", "method", "path", "status")
	m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served, by method, path and status.",
	}, []string{"method", "path", "status"})

	cacheLatency := histogram("cache_latency_seconds", "Cache lookup latency.")
	cacheWrite := histogram("cache_write_seconds", "Cache set latency.")
	m.cacheLatency = cacheLatency
	m.cacheWrite = cacheWrite
	m.cacheHits = counter("cache_hits_total", "Cache lookups that found a value.")
	m.cacheMisses = counter("cache_misses_total", "Cache lookups that came back empty.")

	m.dbQueryDuration = histogramVec("db_query_duration_seconds", "Database query latency, by query label.", "query")
	m.sessionsPlanned = counter("planned_sessions_generated_total", "Planned sessions produced by the schedule generator.")
	m.fanoutQueued = counter("notification_deliveries_queued_total", "Notification deliveries handed to the fan-out queue.")

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Live goroutine count.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal,
		cacheLatency, cacheWrite, m.cacheHits, m.cacheMisses,
		m.dbQueryDuration, m.sessionsPlanned, m.fanoutQueued,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the scrape endpoint for this registry.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordCacheOperation records a cache lookup and whether it hit.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite records a cache set.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records a labelled database query.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// AddSessionsPlanned counts sessions emitted by the schedule generator.
func (m *MetricsService) AddSessionsPlanned(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sessionsPlanned.Add(float64(count))
}

// AddDeliveriesQueued counts deliveries enqueued for notification fan-out.
func (m *MetricsService) AddDeliveriesQueued(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.fanoutQueued.Add(float64(count))
}
