// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"reddit_relay/internal/domain"
)

const namespace = "reddit_relay"

// Cycle outcomes.
const (
	CycleSuccess = "success"
	CycleSoft    = "soft"
	CycleFailure = "failure"
)

// Item outcomes.
const (
	ItemSent     = "sent"
	ItemFailed   = "failed"
	ItemFiltered = "filtered"
)

// Metrics holds the relay collectors. A nil *Metrics records nothing.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	ItemsTotal    *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	LastSuccess   prometheus.Gauge
	Running       prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_cycles_total",
				Help:      "Total number of sync cycles by outcome",
			},
			[]string{"status"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_cycle_duration_seconds",
				Help:      "Duration of sync cycles in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Total number of fetched items by outcome",
			},
			[]string{"outcome"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by kind and code",
			},
			[]string{"kind", "code"},
		),
		LastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_successful_sync_timestamp_seconds",
				Help:      "Unix time of the last successful sync cycle",
			},
		),
		Running: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "running",
				Help:      "Whether the sync schedule is armed (1 = running, 0 = stopped)",
			},
		),
	}
}

// RecordCycle records a finished cycle.
func (m *Metrics) RecordCycle(status string, stats *domain.SyncStats, duration time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(duration.Seconds())

	if stats != nil {
		m.ItemsTotal.WithLabelValues(ItemSent).Add(float64(stats.Sent))
		m.ItemsTotal.WithLabelValues(ItemFailed).Add(float64(stats.Failed))
		m.ItemsTotal.WithLabelValues(ItemFiltered).Add(float64(stats.Filtered))
	}
	if status != CycleFailure {
		m.LastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordError counts err under its domain kind and code.
func (m *Metrics) RecordError(err error) {
	if m == nil || err == nil {
		return
	}
	kind, code := "unknown", "unknown"
	if c := domain.CodeOf(err); c != "" {
		code = c
		kind = string(domain.KindOf(err))
	}
	m.ErrorsTotal.WithLabelValues(kind, code).Inc()
}

// SetRunning sets the running gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.Running.Set(1)
		return
	}
	m.Running.Set(0)
}
