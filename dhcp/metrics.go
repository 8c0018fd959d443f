package dhcp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics turns client events into prometheus metrics.
type Metrics struct {
	transitions     *prometheus.CounterVec
	transmissions   *prometheus.CounterVec
	discards        *prometheus.CounterVec
	handoffFailures *prometheus.CounterVec
	state           *prometheus.GaugeVec
	leaseExpiry     *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Subsystem: "dhcp",
			Name:      "transitions_total",
			Help:      "State machine transitions.",
		}, []string{"interface", "from", "to"}),
		transmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Subsystem: "dhcp",
			Name:      "messages_sent_total",
			Help:      "Messages handed to the transport, retransmissions included.",
		}, []string{"interface", "type"}),
		discards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Subsystem: "dhcp",
			Name:      "datagrams_discarded_total",
			Help:      "Received datagrams that were ignored.",
		}, []string{"interface", "reason"}),
		handoffFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Subsystem: "dhcp",
			Name:      "handoff_failures_total",
			Help:      "Leases a configurator failed to apply or revoke.",
		}, []string{"interface"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "herald",
			Subsystem: "dhcp",
			Name:      "state",
			Help:      "1 for the current state of each interface.",
		}, []string{"interface", "state"}),
		leaseExpiry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "herald",
			Subsystem: "dhcp",
			Name:      "lease_expiry_timestamp_seconds",
			Help:      "Unix time at which the current lease expires, 0 without lease.",
		}, []string{"interface"}),
	}

	for _, c := range []prometheus.Collector{m.transitions, m.transmissions, m.discards, m.handoffFailures, m.state, m.leaseExpiry} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe is an Observer.
func (m *Metrics) Observe(e Event) {
	switch e.Kind {
	case EventTransition:
		m.transitions.WithLabelValues(e.Interface, e.From.String(), e.To.String()).Inc()
		m.setState(e.Interface, e.To)
		if e.To == StateBound && e.Lease != nil {
			m.leaseExpiry.WithLabelValues(e.Interface).Set(float64(e.Lease.ExpiresAt().Unix()))
		} else if e.To == StateInit {
			m.leaseExpiry.WithLabelValues(e.Interface).Set(0)
		}
	case EventTransmit:
		m.transmissions.WithLabelValues(e.Interface, e.MessageType.String()).Inc()
	case EventDiscard:
		m.discards.WithLabelValues(e.Interface, e.Reason).Inc()
	case EventHandoffFailed:
		m.handoffFailures.WithLabelValues(e.Interface).Inc()
	case EventRelease:
		m.setState(e.Interface, StateInit)
		m.leaseExpiry.WithLabelValues(e.Interface).Set(0)
	}
}

func (m *Metrics) setState(iface string, current State) {
	for _, s := range allStates {
		value := 0.0
		if s == current {
			value = 1
		}
		m.state.WithLabelValues(iface, s.String()).Set(value)
	}
}
