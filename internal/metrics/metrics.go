// Package metrics exposes the proxy's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the proxy's collectors on a private registry so the
// admin /metrics endpoint serves only what the proxy itself records.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	streamChunks   prometheus.Counter
	upstreamErrors *prometheus.CounterVec
	activeConns    prometheus.Gauge
}

// New creates and registers the proxy collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ollamabridge_requests_total",
			Help: "Completed vendor requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ollamabridge_request_duration_seconds",
			Help:    "End-to-end vendor request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		streamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ollamabridge_stream_chunks_total",
			Help: "NDJSON content chunks written to streaming clients.",
		}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ollamabridge_upstream_errors_total",
			Help: "Upstream failures by endpoint.",
		}, []string{"endpoint"}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ollamabridge_active_connections",
			Help: "Vendor connections currently being handled.",
		}),
	}

	m.registry.MustRegister(m.requests, m.duration, m.streamChunks, m.upstreamErrors, m.activeConns)
	return m
}

// ObserveRequest records one completed vendor request.
func (m *Metrics) ObserveRequest(endpoint string, status int, d time.Duration) {
	m.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// AddStreamChunks adds to the emitted stream chunk counter.
func (m *Metrics) AddStreamChunks(n int) {
	m.streamChunks.Add(float64(n))
}

// UpstreamError counts one upstream failure on an endpoint.
func (m *Metrics) UpstreamError(endpoint string) {
	m.upstreamErrors.WithLabelValues(endpoint).Inc()
}

// ConnOpened increments the active connection gauge.
func (m *Metrics) ConnOpened() { m.activeConns.Inc() }

// ConnClosed decrements the active connection gauge.
func (m *Metrics) ConnClosed() { m.activeConns.Dec() }

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
