// Package telemetry exposes worker metrics and queue status over HTTP.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crawlq/internal/queue"
)

// Metrics holds the crawl collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Enqueued  *prometheus.CounterVec
	Completed *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
	Pending   prometheus.Gauge
	InFlight  prometheus.Gauge
	Failing   prometheus.Gauge
}

// NewMetrics registers the crawl collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		Enqueued:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "crawlq_commands_enqueued_total", Help: "Commands persisted, by kind"}, []string{"kind"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "crawlq_commands_completed_total", Help: "Commands committed, by kind"}, []string{"kind"}),
		Failed:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "crawlq_commands_failed_total", Help: "Command executions that failed and stay pending, by kind"}, []string{"kind"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawlq_command_duration_seconds",
			Help:    "Command execution time, by kind",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		Pending:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "crawlq_queue_pending", Help: "Pending commands"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{Name: "crawlq_queue_inflight", Help: "Commands currently claimed"}),
		Failing:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "crawlq_queue_failing", Help: "Pending commands whose last attempt failed"}),
	}
	m.registry.MustRegister(m.Enqueued, m.Completed, m.Failed, m.Duration, m.Pending, m.InFlight, m.Failing)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEnqueued counts n commands of kind persisted.
func (m *Metrics) ObserveEnqueued(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Enqueued.WithLabelValues(kind).Add(float64(n))
}

// ObserveCompleted counts a committed command and its execution time.
func (m *Metrics) ObserveCompleted(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Completed.WithLabelValues(kind).Inc()
	m.Duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveFailed counts a failed execution.
func (m *Metrics) ObserveFailed(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Failed.WithLabelValues(kind).Inc()
	m.Duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// SetQueue updates the queue gauges from a health summary.
func (m *Metrics) SetQueue(h queue.HealthSummary) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(h.Pending))
	m.InFlight.Set(float64(h.InFlight))
	m.Failing.Set(float64(h.Failing))
}
