package cache

import (
	"time"

	"github.com/c360/bridgekit/metric"
)

// Option configures a cache produced by NewLRU.
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	ttl           time.Duration
	evictCallback EvictCallback[V]
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithTTL sets a per-entry time to live. Expired entries stop being
// served immediately and are swept in the background. Zero or negative
// values leave expiry disabled.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(opts *cacheOptions[V]) {
		if ttl > 0 {
			opts.ttl = ttl
		}
	}
}

// WithEvictCallback registers a callback invoked whenever the cache
// drops an entry, including explicit Delete and Clear.
func WithEvictCallback[V any](cb EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = cb
	}
}

// WithMetrics exports cache statistics as Prometheus metrics under the
// bridgekit_cache_* names, labeled with prefix as the component. A nil
// registry or empty prefix disables the export.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

func applyOptions[V any](options ...Option[V]) cacheOptions[V] {
	var opts cacheOptions[V]
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}
