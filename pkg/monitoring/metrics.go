package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection. Each collector owns
// its registry so several can coexist in one process.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	storeRequestsTotal   *prometheus.CounterVec
	storeRequestDuration *prometheus.HistogramVec
	staleResponses       *prometheus.CounterVec

	dbQueryDuration *prometheus.HistogramVec
	readingsTotal   *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),

		storeRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_requests_total",
				Help: "Total number of requests sent to the reading store",
			},
			[]string{"operation", "status", "service"},
		),
		storeRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_request_duration_seconds",
				Help:    "Duration of reading store requests in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation", "service"},
		),
		staleResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collection_stale_responses_total",
				Help: "Fetch responses discarded because a newer request was issued",
			},
			[]string{"service"},
		),

		dbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"query_type", "service"},
		),
		readingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readings_total",
				Help: "Readings created or deleted by the entries service",
			},
			[]string{"action", "service"},
		),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.storeRequestsTotal,
		m.storeRequestDuration,
		m.staleResponses,
		m.dbQueryDuration,
		m.readingsTotal,
	)

	return m
}

// Registry exposes the underlying registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordStoreRequest records one call to the reading store
func (m *MetricsCollector) RecordStoreRequest(operation, status string, duration time.Duration) {
	m.storeRequestsTotal.WithLabelValues(operation, status, m.serviceName).Inc()
	m.storeRequestDuration.WithLabelValues(operation, m.serviceName).Observe(duration.Seconds())
}

// RecordStaleResponse counts a discarded fetch response
func (m *MetricsCollector) RecordStaleResponse() {
	m.staleResponses.WithLabelValues(m.serviceName).Inc()
}

// RecordDBQuery records database query metrics
func (m *MetricsCollector) RecordDBQuery(queryType string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(queryType, m.serviceName).Observe(duration.Seconds())
}

// RecordReading counts a created or deleted reading
func (m *MetricsCollector) RecordReading(action string) {
	m.readingsTotal.WithLabelValues(action, m.serviceName).Inc()
}

// StoreRequests returns the counter for an operation and status, for tests and dashboards
func (m *MetricsCollector) StoreRequests(operation, status string) prometheus.Counter {
	return m.storeRequestsTotal.WithLabelValues(operation, status, m.serviceName)
}

// Readings returns the reading counter for an action
func (m *MetricsCollector) Readings(action string) prometheus.Counter {
	return m.readingsTotal.WithLabelValues(action, m.serviceName)
}

// StaleResponses returns the stale response counter
func (m *MetricsCollector) StaleResponses() prometheus.Counter {
	return m.staleResponses.WithLabelValues(m.serviceName)
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
