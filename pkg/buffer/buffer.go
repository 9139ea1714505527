package buffer

// Buffer is a bounded FIFO over items of type T. Implementations are safe
// for concurrent use.
type Buffer[T any] interface {
	// Write appends an item. When the buffer is full the overflow policy
	// decides which item loses its place; Write itself never blocks.
	Write(item T) error

	// Read removes and returns the oldest item. The second result is false
	// when the buffer is empty.
	Read() (T, bool)

	// ReadBatch removes and returns up to max items, oldest first.
	ReadBatch(max int) []T

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	// Size returns the number of buffered items.
	Size() int

	// Capacity returns the fixed maximum number of items.
	Capacity() int

	// Clear drops every buffered item.
	Clear()

	// Stats returns the buffer's counters.
	Stats() *Statistics

	// Close marks the buffer closed; subsequent writes fail. Buffered items
	// stay readable.
	Close() error
}

// OverflowPolicy decides which item is shed when a write hits a full buffer.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item so the new one fits. Right for
	// traffic capture, where recent records matter most.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the incoming item and keeps the backlog.
	DropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback observes each item shed by the overflow policy or Clear.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a fixed-capacity ring. The default policy is
// DropOldest. The only error source is Prometheus registration when
// WithMetrics is given a registry.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	return newRing(capacity, applyOptions(options...))
}
