// Package bridge implements the dispatch core of the BridgeKit host: the
// asynchronous invocation pipeline between callers (embedded scripts, remote
// gateway connections) and native capability modules.
//
// # Architecture
//
// The package is built around five cooperating pieces:
//
//	Caller ──Invoke──▶ Dispatcher ──lane──▶ worker pool ──▶ module handler
//	   ▲                                                        │
//	   └────────── PendingRequest.Done() ◀───complete/fail──────┘
//
//   - Dispatcher: resolves the target through the namespace table, validates
//     arguments against the declared signature, and queues the call. Every
//     invocation is asynchronous even when the handler completes
//     synchronously, so callers observe one uniform contract.
//   - PendingRequest: the completion slot for one in-flight call. Satisfied
//     exactly once by whichever of {handler result, handler error, timeout,
//     shutdown} wins the atomic race; every later attempt is a no-op.
//   - Ordered lanes: invocations from the same caller to the same module
//     reach the handler in issuance order. Distinct callers and modules
//     never serialize against each other, and responses correlate strictly
//     by request id, never by arrival order.
//   - CallbackQueue: per-caller serial delivery goroutine. Native threads
//     never run caller-side code; events and callbacks are queued here and
//     delivered one at a time on the queue's goroutine.
//   - EventHub: fans module event emissions out to subscribed callers, one
//     queued callback per live subscription.
//
// # Basic Usage
//
//	table, _ := module.NewNamespaceTable("v1", "v2")
//	// ... register modules, then table.FreezeAll() ...
//
//	d, err := bridge.NewDispatcher(bridge.DefaultConfig(), bridge.Deps{
//		Table:   table,
//		Logger:  logger,
//		Metrics: metrics,
//	})
//	if err != nil {
//		return err
//	}
//	if err := d.Start(ctx); err != nil {
//		return err
//	}
//	defer d.Stop(5 * time.Second)
//
//	pending, err := d.Invoke(bridge.Invocation{
//		CallerID:  "runtime-1",
//		Namespace: "v1",
//		Module:    "Settings",
//		Method:    "get",
//		Args:      []value.Value{value.NewString("theme")},
//		Timeout:   2 * time.Second,
//	})
//	if err != nil {
//		return err // rejected before dispatch: nothing is in flight
//	}
//	completion := <-pending.Done()
//
// # Completion Semantics
//
// Invoke either returns an error (the call was rejected before dispatch and
// no PendingRequest exists) or a PendingRequest that will resolve with
// exactly one Completion. A Completion carries either a result or a
// {kind, message} wire error, never both. The timeout timer armed at
// dispatch completes the request with kind "timeout" when the native side
// never responds; a caller that saw the timeout will never receive a later
// result for the same request id.
//
// Per-call failures (type_mismatch, timeout, native_failure) resolve only
// that caller's completion slot. They never crash the dispatcher and never
// disturb other in-flight requests. The dispatcher never retries: capability
// calls are not idempotent.
//
// # Event Subscriptions
//
// Modules declare event streams and emit through the module.Emitter bound at
// registration. Subscribing yields a Subscription whose cancellation is
// linearized against delivery: the token is checked on the delivery
// goroutine immediately before handler invocation, so a callback queued
// before Cancel is never delivered after Cancel returns. Handlers that
// remove themselves use CancelFromCallback, which skips the lock barrier
// that would otherwise deadlock the delivery goroutine.
//
// # Traffic Inspection
//
// When constructed with an Inspector, the dispatcher publishes one JSON
// record per invocation and completion to
//
//	bridgekit.<org>.<host>.bridge.traffic.<namespace>.<module>
//
// Records buffer through a fixed drop-oldest ring, so slow tooling or a
// disconnected NATS server costs records, never dispatch latency.
//
// # Shutdown
//
// Stop refuses new invocations, fails lane-queued work with a shutdown
// error, lets pool workers finish their current handlers within the timeout,
// and then fails anything still unresolved. Every caller holding a
// PendingRequest receives its completion; nobody waits on a dead host.
package bridge
