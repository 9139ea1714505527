// Package cache provides the read cache used by the settings module to
// front its NATS key-value bucket.
//
// # Overview
//
// The package exposes a single generic interface, Cache[V], with two
// implementations:
//
//   - NewLRU: a size-bounded cache with least-recently-used eviction,
//     built on hashicorp/golang-lru. WithTTL layers per-entry expiry on
//     top of the size bound.
//   - NewNoop: a cache that stores nothing and always misses, used when
//     caching is disabled so callers never branch on nil.
//
// Keys are strings. Values are any type; the settings module stores
// value.Value so cached reads come back in the same shape as bucket
// reads.
//
// # Usage
//
//	readCache, err := cache.NewLRU[value.Value](1024)
//	if err != nil {
//		return err
//	}
//	defer readCache.Close()
//
//	if v, ok := readCache.Get("display.brightness"); ok {
//		return v, nil
//	}
//	v, err := bucket.Get(ctx, "display.brightness")
//	if err != nil {
//		return value.Value{}, err
//	}
//	_, _ = readCache.Set("display.brightness", v)
//
// With a TTL, entries also age out:
//
//	sessions, err := cache.NewLRU[Session](512,
//		cache.WithTTL[Session](5*time.Minute),
//	)
//
// An expired entry stops being served as soon as it expires; the sweep
// that reclaims its memory runs in the background.
//
// # Eviction
//
// When a Set would exceed the size bound, the least recently used entry
// is dropped and Statistics.Evictions is incremented. WithEvictCallback
// observes every entry the cache lets go of, including TTL expiry,
// explicit Delete, and Clear. The callback must not call back into the
// cache.
//
// # Observability
//
// Every cache tracks Statistics (hits, misses, sets, deletes,
// evictions, size high water). WithMetrics additionally exports the
// same counters as Prometheus metrics:
//
//	bridgekit_cache_hits_total
//	bridgekit_cache_misses_total
//	bridgekit_cache_sets_total
//	bridgekit_cache_deletes_total
//	bridgekit_cache_evictions_total
//	bridgekit_cache_size
//
// All metrics carry a component label so multiple caches can share one
// registry.
//
// # Concurrency
//
// All operations are safe for concurrent use. Lookups and mutations
// serialize on the underlying store's lock, so values should be cheap
// to copy; the settings module stores value.Value, which wraps an
// already-decoded JSON value.
package cache
