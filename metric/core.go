package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all bridge-level metrics (not module-specific)
type Metrics struct {
	// Module metrics
	ModuleStatus      *prometheus.GaugeVec
	HealthCheckStatus *prometheus.GaugeVec

	// Dispatch metrics
	InvocationsReceived  *prometheus.CounterVec
	InvocationsCompleted *prometheus.CounterVec
	DispatchDuration     *prometheus.HistogramVec
	CallbackQueueDepth   *prometheus.GaugeVec
	EventsEmitted        *prometheus.CounterVec
	SubscriptionsActive  *prometheus.GaugeVec
	ErrorsTotal          *prometheus.CounterVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all bridge metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Module metrics
		ModuleStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bridgekit",
				Subsystem: "module",
				Name:      "status",
				Help:      "Module lifecycle status (0=created, 1=initialized, 2=started, 3=stopped, 4=failed)",
			},
			[]string{"module"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bridgekit",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"module"},
		),

		// Dispatch metrics
		InvocationsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "dispatch",
				Name:      "invocations_total",
				Help:      "Total number of bridge invocations received",
			},
			[]string{"namespace", "module", "method"},
		),

		InvocationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "dispatch",
				Name:      "completions_total",
				Help:      "Total number of bridge invocations completed",
			},
			[]string{"namespace", "module", "method", "status"},
		),

		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bridgekit",
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Time from invocation acceptance to completion delivery in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"namespace", "module", "method"},
		),

		CallbackQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bridgekit",
				Subsystem: "dispatch",
				Name:      "callback_queue_depth",
				Help:      "Callbacks waiting for the scripting thread",
			},
			[]string{"caller"},
		),

		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Total number of module events emitted",
			},
			[]string{"namespace", "module", "event"},
		),

		SubscriptionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bridgekit",
				Subsystem: "events",
				Name:      "subscriptions_active",
				Help:      "Currently active event subscriptions",
			},
			[]string{"namespace", "module"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and kind",
			},
			[]string{"component", "kind"},
		),

		// NATS metrics
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bridgekit",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bridgekit",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bridgekit",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bridgekit",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordModuleStatus updates module lifecycle status metric
func (c *Metrics) RecordModuleStatus(module string, status int) {
	c.ModuleStatus.WithLabelValues(module).Set(float64(status))
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(module string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(module).Set(value)
}

// RecordInvocation increments the received invocation counter
func (c *Metrics) RecordInvocation(namespace, module, method string) {
	c.InvocationsReceived.WithLabelValues(namespace, module, method).Inc()
}

// RecordCompletion increments the completion counter. Status is one of
// "ok", "error", or "timeout".
func (c *Metrics) RecordCompletion(namespace, module, method, status string) {
	c.InvocationsCompleted.WithLabelValues(namespace, module, method, status).Inc()
}

// RecordDispatchDuration records acceptance-to-completion latency
func (c *Metrics) RecordDispatchDuration(namespace, module, method string, duration time.Duration) {
	c.DispatchDuration.WithLabelValues(namespace, module, method).Observe(duration.Seconds())
}

// RecordCallbackQueueDepth updates the per-caller callback queue gauge
func (c *Metrics) RecordCallbackQueueDepth(caller string, depth int) {
	c.CallbackQueueDepth.WithLabelValues(caller).Set(float64(depth))
}

// RecordEventEmitted increments the emitted event counter
func (c *Metrics) RecordEventEmitted(namespace, module, event string) {
	c.EventsEmitted.WithLabelValues(namespace, module, event).Inc()
}

// RecordSubscriptions updates the active subscription gauge
func (c *Metrics) RecordSubscriptions(namespace, module string, active int) {
	c.SubscriptionsActive.WithLabelValues(namespace, module).Set(float64(active))
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, kind string) {
	c.ErrorsTotal.WithLabelValues(component, kind).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}
