package gateway

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/bridgekit/metric"
)

// gatewayMetrics holds Prometheus metrics for the attach server.
type gatewayMetrics struct {
	connectionsTotal *prometheus.CounterVec // By namespace
	connected        prometheus.Gauge
	disconnections   *prometheus.CounterVec // By reason
	framesReceived   *prometheus.CounterVec // By op
	framesSent       *prometheus.CounterVec // By op
	frameErrors      *prometheus.CounterVec // By reason
}

// newGatewayMetrics creates and registers gateway metrics with the provided
// registry. A nil registry disables metrics.
func newGatewayMetrics(registry *metric.MetricsRegistry) (*gatewayMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &gatewayMetrics{
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgekit",
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "Total accepted WebSocket attachments",
		}, []string{"namespace"}),

		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridgekit",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Currently attached callers",
		}),

		disconnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgekit",
			Subsystem: "gateway",
			Name:      "disconnections_total",
			Help:      "Total detached callers",
		}, []string{"reason"}),

		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgekit",
			Subsystem: "gateway",
			Name:      "frames_received_total",
			Help:      "Total client frames received",
		}, []string{"op"}),

		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgekit",
			Subsystem: "gateway",
			Name:      "frames_sent_total",
			Help:      "Total server frames written",
		}, []string{"op"}),

		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgekit",
			Subsystem: "gateway",
			Name:      "frame_errors_total",
			Help:      "Client frames refused or failed",
		}, []string{"reason"}),
	}

	if err := registry.RegisterCounterVec("gateway", "connections_total", m.connectionsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("gateway", "connections", m.connected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("gateway", "disconnections_total", m.disconnections); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("gateway", "frames_received_total", m.framesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("gateway", "frames_sent_total", m.framesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("gateway", "frame_errors_total", m.frameErrors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *gatewayMetrics) recordAttach(namespace string, connected int) {
	if m == nil {
		return
	}
	m.connectionsTotal.WithLabelValues(namespace).Inc()
	m.connected.Set(float64(connected))
}

func (m *gatewayMetrics) recordDetach(reason string, connected int) {
	if m == nil {
		return
	}
	m.disconnections.WithLabelValues(reason).Inc()
	m.connected.Set(float64(connected))
}

func (m *gatewayMetrics) recordReceived(op string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(op).Inc()
}

func (m *gatewayMetrics) recordSent(op string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(op).Inc()
}

func (m *gatewayMetrics) recordFrameError(reason string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(reason).Inc()
}
