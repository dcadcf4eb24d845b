package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the engine's Prometheus metrics.
type Metrics struct {
	decisionsTotal   *prometheus.CounterVec
	fallbacksTotal   *prometheus.CounterVec
	regressionsTotal *prometheus.CounterVec
	resolveDuration  prometheus.Histogram
}

// NewMetrics creates the engine metrics and registers them with reg.
// A nil registerer leaves the metrics unregistered, which tests use to
// avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdant_decisions_total",
				Help: "Total number of scheduling decisions by kind",
			},
			[]string{"kind"},
		),
		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdant_source_fallbacks_total",
				Help: "Total number of static-intensity fallbacks by region",
			},
			[]string{"region"},
		),
		regressionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdant_regressions_total",
				Help: "Total number of evaluated measurements by severity",
			},
			[]string{"severity"},
		),
		resolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "verdant_resolve_duration_seconds",
				Help:    "Time spent resolving intensity for a request",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.decisionsTotal, m.fallbacksTotal, m.regressionsTotal, m.resolveDuration)
	}
	return m
}
