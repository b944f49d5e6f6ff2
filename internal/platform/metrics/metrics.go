package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	TaskMutations *prometheus.CounterVec
	AuditEvents   *prometheus.CounterVec
}

// New registers the collectors on a private registry together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tamaco",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tamaco",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		TaskMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tamaco",
			Name:      "task_mutations_total",
			Help:      "Committed task mutations by kind.",
		}, []string{"kind"}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tamaco",
			Name:      "audit_events_total",
			Help:      "Audit events by outcome (published, dropped, stored, failed).",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.TaskMutations,
		m.AuditEvents,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveTaskMutation is safe on a nil receiver so services can run without metrics.
func (m *Metrics) ObserveTaskMutation(kind string) {
	if m == nil {
		return
	}
	m.TaskMutations.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveAudit(outcome string) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(outcome).Inc()
}
