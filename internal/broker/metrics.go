package broker

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the broker's operational Prometheus counters, mirroring the
// teacher's internal/metrics package (plain prometheus.CounterVec/GaugeVec
// package vars plus a Register helper) but scoped to broker connection
// lifecycle events instead of Kafka ingestion. These are ambient
// operational metrics, distinct from the per-view key packages (C7)
// consumers publish through internal/tskp.
type Metrics struct {
	ReconnectsTotal         prometheus.Counter
	RequestsSubmittedTotal  prometheus.Counter
	RepliesReceivedTotal    prometheus.Counter
	RetransmitsTotal        prometheus.Counter
	RequestsDroppedTotal    prometheus.Counter
	ViewsRelayedTotal       prometheus.Counter
}

// NewMetrics builds a fresh, unregistered Metrics set labeled with
// instance, so multiple brokers in the same process (e.g. tests) don't
// collide on collector registration.
func NewMetrics(instance string) Metrics {
	constLabels := prometheus.Labels{"instance": instance}
	return Metrics{
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bgpview_client_broker_reconnects_total",
			Help:        "Total broker reconnect attempts.",
			ConstLabels: constLabels,
		}),
		RequestsSubmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bgpview_client_broker_requests_submitted_total",
			Help:        "Total VIEW requests submitted to the server.",
			ConstLabels: constLabels,
		}),
		RepliesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bgpview_client_broker_replies_received_total",
			Help:        "Total REPLY messages matched to an outstanding request.",
			ConstLabels: constLabels,
		}),
		RetransmitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bgpview_client_broker_retransmits_total",
			Help:        "Total request retransmissions.",
			ConstLabels: constLabels,
		}),
		RequestsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bgpview_client_broker_requests_dropped_total",
			Help:        "Total requests dropped after exhausting retries.",
			ConstLabels: constLabels,
		}),
		ViewsRelayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bgpview_client_broker_views_relayed_total",
			Help:        "Total subscribed views relayed to the master.",
			ConstLabels: constLabels,
		}),
	}
}

// MustRegister registers every collector in m with the default registry
// (or a caller-supplied one via prometheus.Register calls elsewhere).
func (m Metrics) MustRegister() {
	prometheus.MustRegister(
		m.ReconnectsTotal,
		m.RequestsSubmittedTotal,
		m.RepliesReceivedTotal,
		m.RetransmitsTotal,
		m.RequestsDroppedTotal,
		m.ViewsRelayedTotal,
	)
}
