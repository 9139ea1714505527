package worker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/bridgekit/metric"
)

// poolMetrics holds the Prometheus collectors for one pool.
type poolMetrics struct {
	queueDepth     prometheus.Gauge
	utilization    prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	dropped        prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// newPoolMetrics creates and registers the pool collectors. The prefix
// names the pool, so two pools exporting through one registry need
// distinct prefixes.
func newPoolMetrics(registry *metric.MetricsRegistry, prefix string) (*poolMetrics, error) {
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Current number of queued work items",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_utilization",
			Help: "Queue depth as a fraction of queue capacity (0-1)",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Total work items accepted into the queue",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_processed_total",
			Help: "Total work items processed",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_failed_total",
			Help: "Total work items whose processor returned an error",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_dropped_total",
			Help: "Total work items dropped because the queue was full",
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_processing_duration_seconds",
			Help:    "Time spent processing one work item",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"status"}),
	}

	const component = "worker_pool"
	if err := registry.RegisterGauge(component, prefix+"_queue_depth", m.queueDepth); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(component, prefix+"_utilization", m.utilization); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, prefix+"_submitted_total", m.submitted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, prefix+"_processed_total", m.processed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, prefix+"_failed_total", m.failed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(component, prefix+"_dropped_total", m.dropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(component, prefix+"_processing_duration_seconds", m.processingTime); err != nil {
		return nil, err
	}
	return m, nil
}
