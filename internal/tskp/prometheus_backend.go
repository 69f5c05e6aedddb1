package tskp

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusBackend is the default production Backend: one
// prometheus.Gauge per key name, created lazily the first time that name
// is published and reused thereafter. Grounded in the teacher's
// internal/metrics package-level collector pattern, but built per-instance
// here since a key package's name set isn't known until consumer startup.
type PrometheusBackend struct {
	mu       sync.Mutex
	registry prometheus.Registerer
	gauges   map[string]prometheus.Gauge
}

func NewPrometheusBackend(registry prometheus.Registerer) *PrometheusBackend {
	return &PrometheusBackend{
		registry: registry,
		gauges:   make(map[string]prometheus.Gauge),
	}
}

func (b *PrometheusBackend) Publish(ts time.Time, names []string, values []float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, name := range names {
		g, ok := b.gauges[name]
		if !ok {
			g = prometheus.NewGauge(prometheus.GaugeOpts{
				Name: name,
				Help: "bgpview-client time-series key: " + name,
			})
			if err := b.registry.Register(g); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					g = are.ExistingCollector.(prometheus.Gauge)
				} else {
					return err
				}
			}
			b.gauges[name] = g
		}
		g.Set(values[i])
	}
	_ = ts // Prometheus gauges are sampled, not timestamped, on scrape.
	return nil
}
