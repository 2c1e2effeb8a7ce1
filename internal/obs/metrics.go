package obs

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder observes the outcome of a named operation.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Metrics publishes operation timings and counters through a dedicated
// prometheus registry. The zero value is not usable; call NewMetrics.
type Metrics struct {
	registry  *prometheus.Registry
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
	kvOps     *prometheus.CounterVec
	alerts    *prometheus.CounterVec
	events    *prometheus.CounterVec
}

// NewMetrics constructs the collectors and registers them on a fresh
// registry, so independent services never collide on registration.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "detailcrm",
			Name:      "operation_duration_seconds",
			Help:      "Duration of gateway and repository operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailcrm",
			Name:      "operation_results_total",
			Help:      "Operation outcomes by status.",
		}, []string{"operation", "status"}),
		kvOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailcrm",
			Name:      "kv_operations_total",
			Help:      "Durable store operations by driver, op and status.",
		}, []string{"driver", "op", "status"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailcrm",
			Name:      "admin_alerts_total",
			Help:      "Admin alerts by type and outcome (pushed, deduplicated, failed).",
		}, []string{"type", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detailcrm",
			Name:      "bus_events_total",
			Help:      "Notification bus events by kind and origin.",
		}, []string{"kind", "origin"}),
	}
	m.registry.MustRegister(m.durations, m.results, m.kvOps, m.alerts, m.events,
		prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

// Observe implements Recorder.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if m == nil || operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	m.durations.WithLabelValues(operation).Observe(duration.Seconds())
	m.results.WithLabelValues(operation, status).Inc()
}

// KVOp counts a durable store call.
func (m *Metrics) KVOp(driver, op string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.kvOps.WithLabelValues(driver, op, status).Inc()
}

// Alert counts an alert push outcome.
func (m *Metrics) Alert(alertType, outcome string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(alertType, outcome).Inc()
}

// Event counts a bus delivery.
func (m *Metrics) Event(kind string, remote bool) {
	if m == nil {
		return
	}
	origin := "local"
	if remote {
		origin = "remote"
	}
	m.events.WithLabelValues(kind, origin).Inc()
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
