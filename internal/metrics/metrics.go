// Package metrics exposes prometheus instrumentation for the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the engine's counters. All methods are safe on a
// nil receiver so instrumentation stays optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	ordersSubmitted *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	tradesExecuted  prometheus.Counter
	matchDuration   prometheus.Histogram
}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders accepted into the book, by side",
		}, []string{"side"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Order submissions rejected, by reason",
		}, []string{"reason"}),
		tradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Trades produced by the matching engine",
		}),
		matchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Duration of a full match pass",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(m.ordersSubmitted, m.ordersRejected, m.tradesExecuted, m.matchDuration)
	return m
}

// Handler serves the registry for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderSubmitted(side string) {
	if m != nil {
		m.ordersSubmitted.WithLabelValues(side).Inc()
	}
}

func (m *Metrics) OrderRejected(reason string) {
	if m != nil {
		m.ordersRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) TradesExecuted(n int) {
	if m != nil && n > 0 {
		m.tradesExecuted.Add(float64(n))
	}
}

func (m *Metrics) ObserveMatch(d time.Duration) {
	if m != nil {
		m.matchDuration.Observe(d.Seconds())
	}
}
