package actor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runtime collectors. A nil *Metrics records nothing.
type Metrics struct {
	spawned    *prometheus.CounterVec
	terminated *prometheus.CounterVec
	events     *prometheus.CounterVec
	delayed    *prometheus.CounterVec
}

// NewMetrics creates the runtime collectors and registers them when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		spawned: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chronicle_actor_spawned_total", Help: "Spawned actors"},
			[]string{"actor"},
		),
		terminated: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chronicle_actor_terminated_total", Help: "Terminated actors by outcome"},
			[]string{"actor", "outcome"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chronicle_mailbox_events_total", Help: "Events enqueued into mailboxes"},
			[]string{"actor"},
		),
		delayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chronicle_actor_delayed_total", Help: "Events scheduled for re-delivery"},
			[]string{"actor"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.spawned, m.terminated, m.events, m.delayed)
	}

	return m
}

func (m *Metrics) actorSpawned(actor string) {
	if m != nil {
		m.spawned.WithLabelValues(actor).Inc()
	}
}

func (m *Metrics) actorTerminated(actor, outcome string) {
	if m != nil {
		m.terminated.WithLabelValues(actor, outcome).Inc()
	}
}

func (m *Metrics) eventEnqueued(actor string) {
	if m != nil {
		m.events.WithLabelValues(actor).Inc()
	}
}

func (m *Metrics) eventDelayed(actor string) {
	if m != nil {
		m.delayed.WithLabelValues(actor).Inc()
	}
}
