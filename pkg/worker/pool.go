package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
)

// Pool runs a fixed set of workers that drain a bounded queue of T items.
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	workChan chan T
	quit     chan struct{}
	metrics  *poolMetrics
	wg       sync.WaitGroup

	// mu guards lifecycle transitions. Submit holds the read side so
	// producers do not serialize on each other; Stop takes the write side
	// so the queue channel never sees a send after close.
	mu      sync.RWMutex
	started bool
	stopped bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	metricsRegistry *metric.MetricsRegistry
	metricsPrefix   string
}

// Option configures a Pool at construction.
type Option[T any] func(*Pool[T])

// WithMetricsRegistry exports pool metrics through the registry under the
// given name prefix, e.g. bridgekit_dispatch_pool_queue_depth.
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsPrefix = prefix
	}
}

// NewPool creates a pool of workers goroutines over a queue holding up to
// queueSize items. Non-positive counts fall back to 10 workers and a queue
// of 1000. The processor must not be nil.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	if processor == nil {
		panic("worker: nil processor")
	}

	pool := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pool)
	}
	if pool.metricsRegistry != nil && pool.metricsPrefix != "" {
		// Export is best effort: a prefix collision leaves the pool
		// running without metrics rather than failing construction.
		pool.metrics, _ = newPoolMetrics(pool.metricsRegistry, pool.metricsPrefix)
	}
	return pool
}

// Start launches the workers. The context is handed to every processor
// invocation and cancelling it abandons queued work, so callers normally
// cancel only after Stop has drained the queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "WorkerPool", "Start", "pool already running")
	}

	for range p.workers {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	if p.metrics != nil {
		p.wg.Add(1)
		go p.updateGauges(ctx)
	}
	p.started = true
	return nil
}

// Submit queues one work item without blocking. A full queue drops the item
// and returns a transient error so callers can shed or retry.
func (p *Pool[T]) Submit(work T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "WorkerPool", "Submit", "pool not started")
	}
	if p.stopped {
		return errors.WrapInvalid(errors.ErrShuttingDown, "WorkerPool", "Submit", "pool stopped")
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return errors.WrapTransient(errors.ErrQueueFull, "WorkerPool", "Submit", "queue at capacity")
	}
}

// Stop closes the queue and waits up to timeout for the workers to drain
// it. Items still queued when the timeout fires are abandoned. Stop is
// idempotent and returns nil on a pool that never started.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.workChan)
	close(p.quit)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTimeout(errors.ErrTimeout, "WorkerPool", "Stop", "wait for workers")
	}
}

// Stats returns a snapshot of pool counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats is a point-in-time snapshot of pool activity.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}
			p.runOne(ctx, work)
		}
	}
}

func (p *Pool[T]) runOne(ctx context.Context, work T) {
	start := time.Now()
	err := p.processor(ctx, work)
	duration := time.Since(start)

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}
	if p.metrics != nil {
		p.metrics.processed.Inc()
		status := "success"
		if err != nil {
			p.metrics.failed.Inc()
			status = "error"
		}
		p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// updateGauges refreshes queue depth and utilization once a second. It
// exits on Stop as well as on context cancellation, so a pool stopped
// before its context keeps Stop from waiting out the full timeout.
func (p *Pool[T]) updateGauges(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case <-ticker.C:
			depth := float64(len(p.workChan))
			p.metrics.queueDepth.Set(depth)
			p.metrics.utilization.Set(depth / float64(p.queueSize))
		}
	}
}
