package buffer

import (
	"sync"

	"github.com/c360/bridgekit/errors"
)

// ring is the circular-buffer implementation behind NewCircularBuffer.
// head is the next write slot, tail the next read slot; size disambiguates
// the head==tail case.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	tail  int
	size  int

	closed  bool
	stats   *Statistics
	metrics *bufferMetrics
	opts    *ringOptions[T]
}

func newRing[T any](capacity int, opts *ringOptions[T]) (*ring[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewCircularBuffer",
				"metrics registration")
		}
	}

	return &ring[T]{
		items:   make([]T, capacity),
		stats:   NewStatistics(),
		metrics: metrics,
		opts:    opts,
	}, nil
}

func (r *ring[T]) Write(item T) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrShuttingDown, "Buffer", "Write", "buffer closed")
	}

	var dropped T
	var didDrop bool

	if r.size == len(r.items) {
		r.stats.overflow()
		if r.metrics != nil {
			r.metrics.recordOverflow()
			r.metrics.recordDrop()
		}

		if r.opts.overflowPolicy == DropNewest {
			r.mu.Unlock()
			if r.opts.dropCallback != nil {
				r.opts.dropCallback(item)
			}
			return nil
		}

		// DropOldest: evict the tail to make room.
		dropped = r.items[r.tail]
		didDrop = true
		r.tail = (r.tail + 1) % len(r.items)
		r.size--
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	r.size++

	r.stats.write(int64(r.size))
	if r.metrics != nil {
		r.metrics.recordWrite(r.size, len(r.items))
	}
	r.mu.Unlock()

	// Callback runs outside the lock so it may touch the buffer again.
	if didDrop && r.opts.dropCallback != nil {
		r.opts.dropCallback(dropped)
	}
	return nil
}

func (r *ring[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	item := r.items[r.tail]
	r.items[r.tail] = zero
	r.tail = (r.tail + 1) % len(r.items)
	r.size--

	r.stats.read(int64(r.size))
	if r.metrics != nil {
		r.metrics.recordRead(r.size, len(r.items))
	}
	return item, true
}

func (r *ring[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	n := min(max, r.size)
	batch := make([]T, n)
	var zero T
	for i := range n {
		batch[i] = r.items[r.tail]
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % len(r.items)
		r.size--
		r.stats.read(int64(r.size))
	}

	if r.metrics != nil {
		r.metrics.updateSize(r.size, len(r.items))
	}
	return batch
}

func (r *ring[T]) Peek() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	r.stats.peek()
	if r.metrics != nil {
		r.metrics.recordPeek()
	}
	return r.items[r.tail], true
}

func (r *ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *ring[T]) Capacity() int {
	return len(r.items) // immutable after construction
}

func (r *ring[T]) Clear() {
	r.mu.Lock()

	var cleared []T
	if r.opts.dropCallback != nil && r.size > 0 {
		cleared = make([]T, 0, r.size)
		for i := range r.size {
			cleared = append(cleared, r.items[(r.tail+i)%len(r.items)])
		}
	}

	clear(r.items)
	r.head, r.tail, r.size = 0, 0, 0

	r.stats.updateSize(0)
	if r.metrics != nil {
		r.metrics.updateSize(0, len(r.items))
	}
	r.mu.Unlock()

	for _, item := range cleared {
		r.opts.dropCallback(item)
	}
}

func (r *ring[T]) Stats() *Statistics {
	return r.stats
}

func (r *ring[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
