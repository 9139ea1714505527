package bridge

import (
	"sync/atomic"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/value"
)

// PendingRequest is the completion slot for one in-flight invocation. The
// slot is satisfied exactly once: the first of {native result, native error,
// timeout, shutdown} wins the atomic race and every later attempt is a no-op
// reporting false. Created at dispatch, discarded once the completion is
// observed.
type PendingRequest struct {
	id        string
	callerID  string
	namespace string
	module    string
	method    string
	created   time.Time

	completed atomic.Bool
	done      chan Completion

	// timer is the caller-timeout timer armed at dispatch; stopped on
	// completion so timers do not accumulate. Atomic because the timer can
	// fire while the dispatcher is still arming it.
	timer atomic.Pointer[time.Timer]
}

func newPendingRequest(inv Invocation) *PendingRequest {
	return &PendingRequest{
		id:        inv.RequestID,
		callerID:  inv.CallerID,
		namespace: inv.Namespace,
		module:    inv.Module,
		method:    inv.Method,
		created:   time.Now(),
		done:      make(chan Completion, 1),
	}
}

// ID returns the request id the completion is correlated by.
func (p *PendingRequest) ID() string {
	return p.id
}

// CallerID returns the issuing caller.
func (p *PendingRequest) CallerID() string {
	return p.callerID
}

// Namespace returns the version namespace the request targets.
func (p *PendingRequest) Namespace() string {
	return p.namespace
}

// Module returns the target module name.
func (p *PendingRequest) Module() string {
	return p.module
}

// Method returns the target method name.
func (p *PendingRequest) Method() string {
	return p.method
}

// Age returns how long the request has been in flight.
func (p *PendingRequest) Age() time.Duration {
	return time.Since(p.created)
}

// Done returns the channel the single Completion is delivered on. The
// channel is buffered so the completing side never blocks on a slow caller.
func (p *PendingRequest) Done() <-chan Completion {
	return p.done
}

// Completed reports whether the slot has been satisfied.
func (p *PendingRequest) Completed() bool {
	return p.completed.Load()
}

// Complete satisfies the slot with a result. It reports whether this call
// won the completion race; false means the slot was already satisfied and
// the result is discarded.
func (p *PendingRequest) Complete(result value.Value) bool {
	if !p.completed.CompareAndSwap(false, true) {
		return false
	}
	p.stopTimer()
	p.done <- Completion{RequestID: p.id, Result: result}
	return true
}

// Fail satisfies the slot with an error, flattened to the wire shape. It
// reports whether this call won the completion race.
func (p *PendingRequest) Fail(err error) bool {
	if !p.completed.CompareAndSwap(false, true) {
		return false
	}
	p.stopTimer()
	p.done <- Completion{RequestID: p.id, Err: errors.ToWire(err)}
	return true
}

// armTimer installs the caller-timeout timer. A timer that fires before it
// is installed has already won the completion race and needs no stopping.
func (p *PendingRequest) armTimer(t *time.Timer) {
	p.timer.Store(t)
}

func (p *PendingRequest) stopTimer() {
	if t := p.timer.Load(); t != nil {
		t.Stop()
	}
}
