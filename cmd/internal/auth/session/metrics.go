package session

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the session authority.
type Metrics struct {
	attempts      *prometheus.CounterVec
	compensations *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// NewMetrics registers the collectors against registerer. A nil registerer
// uses the default Prometheus registerer, once per process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultMetricsOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linkup_auth_attempts_total",
		Help: "Session authority operations partitioned by operation and outcome.",
	}, []string{"op", "outcome"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "linkup_auth_compensations_total",
		Help: "Registration compensation steps partitioned by step and outcome.",
	}, []string{"step", "outcome"})
	registerer.MustRegister(attempts, compensations)
	return &Metrics{attempts: attempts, compensations: compensations}
}

func (m *Metrics) attempt(op, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) compensation(step, outcome string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(step, outcome).Inc()
}
