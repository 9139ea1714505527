package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/bridgekit/errors"
)

// MetricsRegistrar defines the interface for registering module-specific metrics
type MetricsRegistrar interface {
	RegisterCounter(moduleName, metricName string, counter prometheus.Counter) error
	RegisterGauge(moduleName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(moduleName, metricName string, histogram prometheus.Histogram) error
	RegisterCounterVec(moduleName, metricName string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(moduleName, metricName string, gaugeVec *prometheus.GaugeVec) error
	RegisterHistogramVec(moduleName, metricName string, histogramVec *prometheus.HistogramVec) error
	Unregister(moduleName, metricName string) bool
}

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with core bridge metrics
func NewMetricsRegistry() *MetricsRegistry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &MetricsRegistry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}

	// Initialize and register core metrics
	registry.Metrics = NewMetrics()
	registry.registerMetrics()

	// Add Go runtime metrics
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core bridge metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// register adds one collector under a moduleName.metricName key, rejecting
// duplicate keys and surfacing Prometheus registration conflicts distinctly
// from hard registration failures.
func (r *MetricsRegistry) register(operation, moduleName, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", moduleName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for module %s", metricName, moduleName),
			"MetricsRegistry", operation, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", operation,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", operation,
			"failed to register collector with prometheus")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// RegisterCounter registers a counter metric for a module
func (r *MetricsRegistry) RegisterCounter(moduleName, metricName string, counter prometheus.Counter) error {
	return r.register("RegisterCounter", moduleName, metricName, counter)
}

// RegisterGauge registers a gauge metric for a module
func (r *MetricsRegistry) RegisterGauge(moduleName, metricName string, gauge prometheus.Gauge) error {
	return r.register("RegisterGauge", moduleName, metricName, gauge)
}

// RegisterHistogram registers a histogram metric for a module
func (r *MetricsRegistry) RegisterHistogram(moduleName, metricName string, histogram prometheus.Histogram) error {
	return r.register("RegisterHistogram", moduleName, metricName, histogram)
}

// RegisterCounterVec registers a counter vector metric for a module
func (r *MetricsRegistry) RegisterCounterVec(moduleName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", moduleName, metricName, counterVec)
}

// RegisterGaugeVec registers a gauge vector metric for a module
func (r *MetricsRegistry) RegisterGaugeVec(moduleName, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register("RegisterGaugeVec", moduleName, metricName, gaugeVec)
}

// RegisterHistogramVec registers a histogram vector metric for a module
func (r *MetricsRegistry) RegisterHistogramVec(
	moduleName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register("RegisterHistogramVec", moduleName, metricName, histogramVec)
}

// Unregister removes a metric from the registry
func (r *MetricsRegistry) Unregister(moduleName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", moduleName, metricName)

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registeredMetrics, key)
	}

	return success
}

// registerMetrics registers all core bridge metrics
func (r *MetricsRegistry) registerMetrics() {
	r.prometheusRegistry.MustRegister(
		r.Metrics.ModuleStatus,
		r.Metrics.HealthCheckStatus,
		r.Metrics.InvocationsReceived,
		r.Metrics.InvocationsCompleted,
		r.Metrics.DispatchDuration,
		r.Metrics.CallbackQueueDepth,
		r.Metrics.EventsEmitted,
		r.Metrics.SubscriptionsActive,
		r.Metrics.ErrorsTotal,
		r.Metrics.NATSConnected,
		r.Metrics.NATSRTT,
		r.Metrics.NATSReconnects,
		r.Metrics.NATSCircuitBreaker,
	)
}
