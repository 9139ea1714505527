package cache

import (
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/c360/bridgekit/errors"
)

// lruCache adapts expirable.LRU to the Cache interface and layers
// statistics and optional Prometheus metrics on top.
type lruCache[V any] struct {
	lru     *expirable.LRU[string, V]
	stats   *Statistics
	metrics *cacheMetrics
}

// NewLRU creates a cache holding at most size entries, evicting the
// least recently used entry when full. WithTTL adds per-entry expiry on
// top of the size bound. Statistics are always collected; WithMetrics
// additionally exports them to Prometheus.
func NewLRU[V any](size int, options ...Option[V]) (Cache[V], error) {
	if size <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Cache", "NewLRU",
			"size must be positive")
	}
	opts := applyOptions(options...)

	c := &lruCache[V]{stats: NewStatistics()}
	if opts.metricsReg != nil {
		metrics, err := newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "Cache", "NewLRU", "metrics registration")
		}
		c.metrics = metrics
	}

	var onEvict expirable.EvictCallback[string, V]
	if opts.evictCallback != nil {
		onEvict = expirable.EvictCallback[string, V](opts.evictCallback)
	}
	// A TTL of zero disables expiry. With a TTL set, the underlying
	// library sweeps expired entries from a goroutine that runs for
	// the life of the process.
	c.lru = expirable.NewLRU(size, onEvict, opts.ttl)

	return c, nil
}

func (c *lruCache[V]) Get(key string) (V, bool) {
	val, ok := c.lru.Get(key)
	if ok {
		c.stats.hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
	} else {
		c.stats.miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
	}
	return val, ok
}

func (c *lruCache[V]) Set(key string, value V) (bool, error) {
	created := !c.lru.Contains(key)
	evicted := c.lru.Add(key, value)

	c.stats.set()
	if evicted {
		c.stats.evict()
	}
	c.stats.updateSize(int64(c.lru.Len()))

	if c.metrics != nil {
		c.metrics.recordSet()
		if evicted {
			c.metrics.recordEviction()
		}
		c.metrics.updateSize(c.lru.Len())
	}
	return created, nil
}

func (c *lruCache[V]) Delete(key string) (bool, error) {
	existed := c.lru.Remove(key)
	if existed {
		c.stats.del()
		c.stats.updateSize(int64(c.lru.Len()))
		if c.metrics != nil {
			c.metrics.recordDelete()
			c.metrics.updateSize(c.lru.Len())
		}
	}
	return existed, nil
}

// Clear removes all entries, invoking the evict callback for each.
func (c *lruCache[V]) Clear() error {
	c.lru.Purge()
	c.stats.updateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	return nil
}

func (c *lruCache[V]) Size() int {
	return c.lru.Len()
}

func (c *lruCache[V]) Keys() []string {
	return c.lru.Keys()
}

func (c *lruCache[V]) Stats() *Statistics {
	return c.stats
}

// Close drops all entries. The TTL sweep goroutine, when one exists,
// is owned by the underlying library and keeps running.
func (c *lruCache[V]) Close() error {
	c.lru.Purge()
	return nil
}
