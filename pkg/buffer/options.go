package buffer

import (
	"github.com/c360/bridgekit/metric"
)

// Option configures a buffer at construction time.
type Option[T any] func(*ringOptions[T])

type ringOptions[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]

	// Prometheus export is on only when both are set.
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithOverflowPolicy selects the shedding behavior for full-buffer writes.
// DropOldest is the default.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(opts *ringOptions[T]) {
		opts.overflowPolicy = policy
	}
}

// WithMetrics exposes the buffer's counters as Prometheus metrics labeled
// with prefix. A nil registry or empty prefix disables the option.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *ringOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback observes every item the overflow policy or Clear sheds.
// The callback runs outside the buffer lock.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *ringOptions[T]) {
		opts.dropCallback = callback
	}
}

func applyOptions[T any](options ...Option[T]) *ringOptions[T] {
	opts := &ringOptions[T]{overflowPolicy: DropOldest}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
