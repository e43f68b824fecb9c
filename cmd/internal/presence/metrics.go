package presence

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the presence gauges.
type Metrics struct {
	users       prometheus.Gauge
	connections prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// NewMetrics registers the gauges. A nil registerer uses the default one, once.
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
	m := &Metrics{
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkup_presence_users",
			Help: "Users with at least one live realtime connection.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkup_presence_connections",
			Help: "Live realtime connections.",
		}),
	}
	registerer.MustRegister(m.users, m.connections)
	return m
}

func (m *Metrics) set(users, conns int) {
	if m == nil {
		return
	}
	m.users.Set(float64(users))
	m.connections.Set(float64(conns))
}
