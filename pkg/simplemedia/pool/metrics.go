package pool

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports pool occupancy. A nil *Metrics records nothing.
type Metrics struct {
	running *prometheus.GaugeVec
	queued  *prometheus.GaugeVec
	tasks   *prometheus.CounterVec
}

// NewMetrics registers the pool collectors with reg. A nil reg creates
// collectors that are not exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mediastore",
			Subsystem: "pool",
			Name:      "running_tasks",
			Help:      "Tasks currently holding a pool slot.",
		}, []string{"pool"}),
		queued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mediastore",
			Subsystem: "pool",
			Name:      "queued_tasks",
			Help:      "Tasks waiting for a pool slot.",
		}, []string{"pool"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediastore",
			Subsystem: "pool",
			Name:      "tasks_total",
			Help:      "Tasks finished, by result.",
		}, []string{"pool", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.running, m.queued, m.tasks)
	}
	return m
}

func (m *Metrics) setRunning(pool string, n int64) {
	if m == nil {
		return
	}
	m.running.WithLabelValues(pool).Set(float64(n))
}

func (m *Metrics) setQueued(pool string, n int64) {
	if m == nil {
		return
	}
	m.queued.WithLabelValues(pool).Set(float64(n))
}

func (m *Metrics) observe(pool, result string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(pool, result).Inc()
}
