// Package retry provides bounded exponential backoff for transient failures.
//
// # Overview
//
// The settings module and the NATS key-value layer retry short operations
// (bucket reads, compare-and-swap writes) that fail transiently under broker
// reconnects. This package gives them one backoff loop instead of ad hoc
// sleeps at every call site.
//
// # Core Functions
//
//   - Do: run a function with retry and exponential backoff
//   - DoWithResult: the same for functions that produce a value
//   - NonRetryable: mark an error so the loop fails fast
//
// # Usage Examples
//
// Retry a KV write with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return bucket.Put(ctx, key, payload)
//	})
//
// Bind a bucket with a result:
//
//	bucket, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (jetstream.KeyValue, error) {
//	    return js.KeyValue(ctx, bucketName)
//	})
//
// Stop immediately on permanent failures:
//
//	err := retry.Do(ctx, cfg, func() error {
//	    if err := validate(payload); err != nil {
//	        return retry.NonRetryable(err)
//	    }
//	    return bucket.Put(ctx, key, payload)
//	})
//
// Custom configuration:
//
//	cfg := retry.Config{
//	    MaxAttempts:  5,
//	    InitialDelay: 200 * time.Millisecond,
//	    MaxDelay:     10 * time.Second,
//	    Multiplier:   2.0,
//	    AddJitter:    true,
//	}
//	err := retry.Do(ctx, cfg, operation)
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breakers (callers own their failure budgets)
//   - No metrics collection (instrument at the call site)
//   - No error classification beyond the NonRetryable marker
//   - Just exponential backoff with jitter
//
// # Context Cancellation
//
// Do stops as soon as the context ends, whether that happens between
// attempts or during a backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use; jitter comes from math/rand/v2,
// which needs no locking.
package retry
