package proxy

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the proxy.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SessionMintsTotal *prometheus.CounterVec
	TTSFallbacksTotal prometheus.Counter
	StreamBytesTotal  prometheus.Counter
}

// NewMetrics creates a Metrics instance with everything registered on a
// private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicebridge"
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	sessionMintsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_mints_total",
			Help:      "Total ephemeral session mint attempts",
		},
		[]string{"outcome"},
	)

	ttsFallbacksTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_fallbacks_total",
			Help:      "Total speech syntheses served by the fallback synthesizer",
		},
	)

	streamBytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Total bytes relayed on streaming chat responses",
		},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		sessionMintsTotal,
		ttsFallbacksTotal,
		streamBytesTotal,
	)

	return &Metrics{
		registry:          registry,
		RequestsTotal:     requestsTotal,
		RequestDuration:   requestDuration,
		SessionMintsTotal: sessionMintsTotal,
		TTSFallbacksTotal: ttsFallbacksTotal,
		StreamBytesTotal:  streamBytesTotal,
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordSessionMint records a mint attempt outcome ("ok" or "error").
func (m *Metrics) RecordSessionMint(outcome string) {
	m.SessionMintsTotal.WithLabelValues(outcome).Inc()
}

// RecordTTSFallback records one synthesis served by the fallback.
func (m *Metrics) RecordTTSFallback() {
	m.TTSFallbacksTotal.Inc()
}

// RecordStreamBytes records bytes relayed to a streaming client.
func (m *Metrics) RecordStreamBytes(n int) {
	if n > 0 {
		m.StreamBytesTotal.Add(float64(n))
	}
}
