package bridge

import (
	"sync"

	"github.com/c360/bridgekit/module"
)

// laneKey identifies one ordered lane. Ordering holds per caller per module
// within a namespace; distinct callers or modules never serialize against
// each other.
type laneKey struct {
	caller    string
	namespace string
	module    string
}

// dispatchTask is one invocation bound for a pool worker, with the method
// already resolved so workers never touch the registry.
type dispatchTask struct {
	pending *PendingRequest
	method  module.Method
	inv     Invocation
}

func (t *dispatchTask) key() laneKey {
	return laneKey{caller: t.inv.CallerID, namespace: t.inv.Namespace, module: t.inv.Module}
}

// lane carries the tasks of one key. At most one task per lane is ever
// inside the worker pool; the rest wait here in issuance order.
type lane struct {
	queue   []*dispatchTask
	running bool
}

// laneSet owns all lanes. Enqueue and advance run under one mutex; the
// critical sections only move slice heads, so contention stays negligible
// next to handler execution.
type laneSet struct {
	mu     sync.Mutex
	lanes  map[laneKey]*lane
	closed bool
}

func newLaneSet() *laneSet {
	return &laneSet{lanes: make(map[laneKey]*lane)}
}

// enqueue adds the task to its lane. It returns the task when the lane was
// idle and the caller must submit it to the pool now; it returns nil when a
// task for the lane is already running and this one waits its turn. After
// close, tasks are handed straight back so the caller fails them against
// the stopped pool instead of parking them forever.
func (ls *laneSet) enqueue(t *dispatchTask) *dispatchTask {
	key := t.key()

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.closed {
		return t
	}

	l := ls.lanes[key]
	if l == nil {
		l = &lane{}
		ls.lanes[key] = l
	}
	if l.running {
		l.queue = append(l.queue, t)
		return nil
	}
	l.running = true
	return t
}

// next releases the lane after a task finished and pops the next waiter.
// Empty lanes are removed so idle callers do not accumulate map entries.
func (ls *laneSet) next(key laneKey) *dispatchTask {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	l := ls.lanes[key]
	if l == nil {
		return nil
	}
	if len(l.queue) == 0 {
		delete(ls.lanes, key)
		return nil
	}
	t := l.queue[0]
	l.queue = l.queue[1:]
	return t
}

// drain closes the set and returns every waiting task so the dispatcher can
// fail their pending requests during shutdown. Tasks already in the pool are
// not included; the pool drains those itself.
func (ls *laneSet) drain() []*dispatchTask {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.closed = true
	var waiting []*dispatchTask
	for key, l := range ls.lanes {
		waiting = append(waiting, l.queue...)
		delete(ls.lanes, key)
	}
	return waiting
}

// depth reports how many tasks are waiting across all lanes.
func (ls *laneSet) depth() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	total := 0
	for _, l := range ls.lanes {
		total += len(l.queue)
	}
	return total
}
