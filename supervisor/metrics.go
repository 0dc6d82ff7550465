package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports supervisor events as prometheus series. Register its Handle with
// Config.AddEventHandler.
type Metrics struct {
	running       *prometheus.GaugeVec
	exits         *prometheus.CounterVec
	restarts      *prometheus.CounterVec
	spawnFailures *prometheus.CounterVec
	meltdowns     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "supervise",
			Name:      "children_running",
			Help:      "Number of children currently running.",
		}, []string{"supervisor"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supervise",
			Name:      "child_exits_total",
			Help:      "Child exits by reason type.",
		}, []string{"supervisor", "child", "reason"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supervise",
			Name:      "child_restarts_total",
			Help:      "Successful child restarts.",
		}, []string{"supervisor", "child"}),
		spawnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supervise",
			Name:      "spawn_failures_total",
			Help:      "Failed spawn attempts.",
		}, []string{"supervisor", "child"}),
		meltdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supervise",
			Name:      "meltdowns_total",
			Help:      "Supervisor meltdowns by reason type.",
		}, []string{"supervisor", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.running, m.exits, m.restarts, m.spawnFailures, m.meltdowns)
	}
	return m
}

func (m *Metrics) Handle(e Event) {
	switch e.Type {
	case ChildStarted:
		m.running.WithLabelValues(e.Supervisor).Inc()
	case ChildRestarted:
		m.running.WithLabelValues(e.Supervisor).Inc()
		m.restarts.WithLabelValues(e.Supervisor, e.Child).Inc()
	case ChildExited:
		m.running.WithLabelValues(e.Supervisor).Dec()
		m.exits.WithLabelValues(e.Supervisor, e.Child, e.Reason.Type).Inc()
	case SpawnFailed:
		m.spawnFailures.WithLabelValues(e.Supervisor, e.Child).Inc()
	case Meltdown:
		m.meltdowns.WithLabelValues(e.Supervisor, e.Reason.Type).Inc()
	}
}
