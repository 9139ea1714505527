package acme

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/bridgekit/errors"
)

// Metrics tracks the certificate lifecycle for one TLS endpoint. All methods
// are nil-safe so instrumentation can stay unconditional in the client.
type Metrics struct {
	renewals     *prometheus.CounterVec // By outcome
	certNotAfter prometheus.Gauge
}

// NewMetrics creates and registers ACME lifecycle metrics with the provided
// registerer. A nil registerer disables metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgekit",
			Subsystem: "acme",
			Name:      "renewals_total",
			Help:      "Certificate obtain and renewal attempts",
		}, []string{"outcome"}),

		certNotAfter: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridgekit",
			Subsystem: "acme",
			Name:      "certificate_not_after_seconds",
			Help:      "Expiry of the active certificate as a Unix timestamp",
		}),
	}

	for _, c := range []prometheus.Collector{m.renewals, m.certNotAfter} {
		if err := reg.Register(c); err != nil {
			return nil, errors.WrapFatal(err, "acme.Metrics", "NewMetrics",
				"register collector")
		}
	}

	return m, nil
}

func (m *Metrics) recordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordNotAfter(notAfter time.Time) {
	if m == nil {
		return
	}
	m.certNotAfter.Set(float64(notAfter.Unix()))
}
