package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the prometheus collectors exposed at /metrics.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
}

// NewMetrics registers the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domain_errors_total",
			Help: "Domain errors by code.",
		}, []string{"code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_transitions_total",
			Help: "Applied ticket transitions by trigger and statuses.",
		}, []string{"trigger", "from", "to"}),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.errorsTotal, m.transitions)
	return m
}

// RecordRequest observes one handled HTTP request.
func (m *Metrics) RecordRequest(path, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(path, method, status).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError counts a domain error by code.
func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(code).Inc()
}

// ObserveTransition counts a successfully applied transition.
func (m *Metrics) ObserveTransition(trigger, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(trigger, from, to).Inc()
}

// Handler exposes the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
