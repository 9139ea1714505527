package settings

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/bridgekit/metric"
)

// settingsMetrics holds Prometheus metrics for settings store operations.
type settingsMetrics struct {
	operations *prometheus.CounterVec   // By namespace, op, and status (ok/error)
	duration   *prometheus.HistogramVec // By namespace and op
	changes    *prometheus.CounterVec   // By namespace
}

// newSettingsMetrics creates and registers settings metrics with the
// provided registry. A nil registry disables metrics.
func newSettingsMetrics(registry *metric.MetricsRegistry) (*settingsMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &settingsMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgekit",
			Subsystem: "settings",
			Name:      "operations_total",
			Help:      "Total settings store operations",
		}, []string{"namespace", "op", "status"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bridgekit",
			Subsystem: "settings",
			Name:      "operation_duration_seconds",
			Help:      "Settings store operation duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"namespace", "op"}),

		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgekit",
			Subsystem: "settings",
			Name:      "changes_total",
			Help:      "Total applied settings writes observed",
		}, []string{"namespace"}),
	}

	if err := registry.RegisterCounterVec("settings", "operations_total", m.operations); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("settings", "operation_duration", m.duration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("settings", "changes_total", m.changes); err != nil {
		return nil, err
	}

	return m, nil
}

// recordOp records one store operation with its outcome.
func (m *settingsMetrics) recordOp(namespace, op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(namespace, op, status).Inc()
	m.duration.WithLabelValues(namespace, op).Observe(elapsed.Seconds())
}

// recordChange records one applied write.
func (m *settingsMetrics) recordChange(namespace string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(namespace).Inc()
}
