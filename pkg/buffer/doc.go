// Package buffer implements bounded rings for producer/consumer decoupling.
//
// # Overview
//
// Components that observe the bridge (the traffic inspector foremost) write
// records on the dispatch path and must never block it. A fixed-capacity
// ring absorbs bursts; when the downstream consumer cannot keep up, the
// overflow policy sheds load instead of applying backpressure.
//
// # Overflow Policies
//
//   - DropOldest (default): evict the oldest record to admit the new one.
//     Traffic capture wants this, since the most recent crossings are the
//     interesting ones.
//   - DropNewest: discard the incoming record and keep the backlog, for
//     consumers that must see a contiguous prefix.
//
// # Usage
//
// A drop-oldest ring for traffic records:
//
//	buf, err := buffer.NewCircularBuffer[TrafficRecord](4096,
//	    buffer.WithOverflowPolicy[TrafficRecord](buffer.DropOldest))
//	if err != nil {
//	    return err
//	}
//	_ = buf.Write(rec)          // producer side, never blocks
//	batch := buf.ReadBatch(64)  // consumer side
//
// Observing sheds:
//
//	buf, _ := buffer.NewCircularBuffer[TrafficRecord](4096,
//	    buffer.WithDropCallback[TrafficRecord](func(rec TrafficRecord) {
//	        log.Debug("record shed", "request_id", rec.RequestID)
//	    }))
//
// # Observability
//
// Every buffer counts writes, reads, peeks, overflows, and drops; Stats()
// exposes them and Summary() snapshots them for debug output. WithMetrics
// additionally registers the counters as Prometheus metrics under the
// bridgekit_buffer_* names, labeled by component.
//
// # Concurrency
//
// All methods are safe for concurrent use. Writes never block; there is no
// blocking policy, because nothing on the dispatch path may wait on an
// observer.
package buffer
