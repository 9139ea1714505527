package cache

// Cache is a string-keyed cache of V values.
type Cache[V any] interface {
	// Get retrieves a value by key. It returns the zero value and
	// false when the key is absent or expired.
	Get(key string) (V, bool)

	// Set stores a value under key. It reports whether a new entry
	// was created; false means an existing entry was updated.
	Set(key string, value V) (bool, error)

	// Delete removes the entry for key and reports whether it existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Keys returns all keys, ordered oldest to newest.
	Keys() []string

	// Stats returns the cache's statistics tracker, nil for
	// implementations that track nothing.
	Stats() *Statistics

	// Close drops all entries. The cache must not be used after Close.
	Close() error
}

// EvictCallback runs when the cache lets go of an entry. The LRU cache
// invokes it for capacity evictions, TTL expiry, explicit Delete, and
// Clear.
type EvictCallback[V any] func(key string, value V)

// NewNoop returns a cache that stores nothing and always misses. It
// stands in when caching is disabled by configuration.
func NewNoop[V any]() Cache[V] {
	return noopCache[V]{}
}

type noopCache[V any] struct{}

func (noopCache[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}

func (noopCache[V]) Set(string, V) (bool, error) {
	return false, nil
}

func (noopCache[V]) Delete(string) (bool, error) {
	return false, nil
}

func (noopCache[V]) Clear() error {
	return nil
}

func (noopCache[V]) Size() int {
	return 0
}

func (noopCache[V]) Keys() []string {
	return nil
}

func (noopCache[V]) Stats() *Statistics {
	return nil
}

func (noopCache[V]) Close() error {
	return nil
}
