package bridge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
)

// DefaultCallbackQueueCapacity bounds a caller's callback queue when the
// config does not say otherwise.
const DefaultCallbackQueueCapacity = 256

// callback is one unit of work bound for a caller's serial queue. When sub
// is non-nil the cancellation token is checked at delivery time; completions
// carry no subscription and are always delivered.
type callback struct {
	sub *Subscription
	fn  func()
}

// CallbackQueue serializes all callback and event delivery for one caller.
// Native threads never run caller-side code directly: they enqueue here and
// a single goroutine delivers in order, so scripting state is only ever
// touched from one goroutine.
type CallbackQueue struct {
	caller string
	ch     chan callback
	done   chan struct{}

	// mu guards the enqueue/close handoff. Enqueue holds the read side so
	// producers do not serialize on each other; Stop takes the write side
	// so the channel never sees a send after close.
	mu     sync.RWMutex
	closed bool

	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewCallbackQueue builds a queue for one caller. Capacity <= 0 uses the
// default. The queue does not deliver until Start is called.
func NewCallbackQueue(caller string, capacity int, logger *slog.Logger, metrics *metric.Metrics) *CallbackQueue {
	if capacity <= 0 {
		capacity = DefaultCallbackQueueCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackQueue{
		caller:  caller,
		ch:      make(chan callback, capacity),
		done:    make(chan struct{}),
		logger:  logger.With("component", "CallbackQueue", "caller", caller),
		metrics: metrics,
	}
}

// Caller returns the owning caller id.
func (q *CallbackQueue) Caller() string {
	return q.caller
}

// Depth returns the number of callbacks waiting for delivery.
func (q *CallbackQueue) Depth() int {
	return len(q.ch)
}

// Start launches the delivery goroutine. Delivery runs until Stop.
func (q *CallbackQueue) Start() {
	go q.run()
}

func (q *CallbackQueue) run() {
	defer close(q.done)
	for cb := range q.ch {
		q.deliver(cb)
		if q.metrics != nil {
			q.metrics.RecordCallbackQueueDepth(q.caller, len(q.ch))
		}
	}
}

// deliver runs one callback. Subscription-bound callbacks take the
// subscription's delivery lock and re-check the cancellation token, so a
// cancel that returned before this point is always honored.
func (q *CallbackQueue) deliver(cb callback) {
	if cb.sub != nil {
		cb.sub.deliverLocked(cb.fn)
		return
	}
	cb.fn()
}

// Enqueue queues a callback for serial delivery. It never blocks: a full
// queue fails with ErrQueueFull so a stalled caller cannot wedge native
// threads.
func (q *CallbackQueue) Enqueue(sub *Subscription, fn func()) error {
	if fn == nil {
		return errors.New(errors.KindInvalidTarget, "CallbackQueue", "Enqueue", "nil callback")
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return errors.WrapTransient(errors.ErrShuttingDown, "CallbackQueue", "Enqueue",
			"enqueue for "+q.caller)
	}

	select {
	case q.ch <- callback{sub: sub, fn: fn}:
		if q.metrics != nil {
			q.metrics.RecordCallbackQueueDepth(q.caller, len(q.ch))
		}
		return nil
	default:
		return errors.WrapTransient(errors.ErrQueueFull, "CallbackQueue", "Enqueue",
			"enqueue for "+q.caller)
	}
}

// Stop closes the queue and waits up to timeout for queued callbacks to
// drain. Enqueue fails immediately once Stop has begun.
func (q *CallbackQueue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.done:
		return nil
	case <-timer.C:
		q.logger.Warn("callback queue did not drain before deadline",
			"pending", len(q.ch))
		return errors.WrapTransient(errors.ErrTimeout, "CallbackQueue", "Stop",
			"drain for "+q.caller)
	}
}
