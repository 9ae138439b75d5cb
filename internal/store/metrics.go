package store

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheuscscp/echo-callback/internal/constants"
)

const (
	removalReasonConsumed = "consumed"
	removalReasonExpired  = "expired"
	removalReasonEvicted  = "evicted"
)

type metrics struct {
	created prometheus.Counter
	written prometheus.Counter
	removed *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "endpoints_created_total",
			Help:      "Number of endpoints created",
		}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "endpoints_written_total",
			Help:      "Number of successful writes to endpoints",
		}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "endpoints_removed_total",
			Help:      "Number of endpoints removed from the registry, by reason",
		}, []string{"reason"}),
	}
}

func (m *metrics) register(reg prometheus.Registerer, live func() int) {
	reg.MustRegister(
		m.created,
		m.written,
		m.removed,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: constants.MetricsNamespace,
			Name:      "endpoints_live",
			Help:      "Number of endpoints currently held in memory",
		}, func() float64 { return float64(live()) }),
	)
}
