// Package metrics holds package-level Prometheus collectors for the
// consumer pipeline's ambient operational metrics — the broker's own
// connection-lifecycle counters live in internal/broker (one Metrics
// struct per broker instance, to avoid collision across tests); these are
// process-wide and registered once via Register.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ViewsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_client_views_processed_total",
			Help: "Total views run through the consumer chain, by outcome.",
		},
		[]string{"outcome"},
	)

	ViewProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpview_client_view_processing_duration_seconds",
			Help:    "Wall-clock time to run one view through the full consumer chain.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{},
	)

	ConsumerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpview_client_consumer_errors_total",
			Help: "Consumer chain aborts, by consumer.",
		},
		[]string{"consumer"},
	)

	GeoIPLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgpview_client_geoip_lookup_duration_seconds",
			Help:    "Postgres geolocation lookup latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{},
	)
)

var registerOnce sync.Once

// Register registers every package-level collector with the default
// registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ViewsProcessedTotal,
			ViewProcessingDuration,
			ConsumerErrorsTotal,
			GeoIPLookupDuration,
		)
	})
}
