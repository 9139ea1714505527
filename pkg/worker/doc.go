// Package worker provides a generic fixed-size worker pool over a bounded
// queue.
//
// # Overview
//
// The bridge dispatcher is the primary user: every native invocation that
// clears validation becomes a task submitted to a Pool, and the pool's
// worker count caps how many native handlers run concurrently. The queue
// is bounded and Submit never blocks, so a burst of invocations degrades
// into explicit queue-full errors instead of unbounded goroutine growth.
//
// # Usage
//
//	pool := worker.NewPool(16, 256, func(ctx context.Context, t *task) error {
//		return t.run(ctx)
//	})
//	if err := pool.Start(ctx); err != nil {
//		return err
//	}
//	defer pool.Stop(5 * time.Second)
//
//	if err := pool.Submit(t); err != nil {
//		// Queue full or pool stopped; fail the task upstream.
//	}
//
// The processor receives the context passed to Start. Handlers that need a
// per-task deadline derive one inside the processor.
//
// # Lifecycle
//
// A pool moves through started and stopped exactly once; Start after Start
// fails, Submit outside the started window fails, Stop is idempotent. Stop
// closes the queue, lets the workers drain what was already accepted, and
// gives up after the caller's timeout. Cancelling the Start context instead
// abandons queued work immediately, so hosts cancel it only after Stop
// returns.
//
// # Observability
//
// Stats returns always-on counters (submitted, processed, failed, dropped,
// queue depth). WithMetricsRegistry additionally exports the same signals
// as Prometheus metrics under the supplied prefix:
//
//	<prefix>_queue_depth
//	<prefix>_utilization
//	<prefix>_submitted_total
//	<prefix>_processed_total
//	<prefix>_failed_total
//	<prefix>_dropped_total
//	<prefix>_processing_duration_seconds{status="success|error"}
//
// # Sizing
//
// Worker count is fixed at construction. The pool does not scale itself;
// pick the worker count for the downstream resource the processor guards
// and size the queue for the burst you are willing to absorb.
package worker
