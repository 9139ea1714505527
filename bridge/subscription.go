package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/value"
)

// Subscription is one caller's registration for one module event. Delivery
// runs on the caller's callback queue; the cancellation token is re-checked
// under the delivery lock, so a callback enqueued before Cancel never fires
// after Cancel returns.
type Subscription struct {
	id        string
	caller    string
	namespace string
	module    string
	event     string

	queue   *CallbackQueue
	handler func(payload value.Value)

	cancelled atomic.Bool
	deliverMu sync.Mutex

	detach func()
}

// ID returns the subscription's correlation id.
func (s *Subscription) ID() string { return s.id }

// Caller returns the subscribing caller id.
func (s *Subscription) Caller() string { return s.caller }

// Namespace returns the version namespace the subscription targets.
func (s *Subscription) Namespace() string { return s.namespace }

// Module returns the module whose events the subscription receives.
func (s *Subscription) Module() string { return s.module }

// Event returns the subscribed event name.
func (s *Subscription) Event() string { return s.event }

// Cancelled reports whether the cancellation token is set.
func (s *Subscription) Cancelled() bool { return s.cancelled.Load() }

// Cancel tears the subscription down. It sets the cancellation token and
// then takes the delivery lock, so a handler that was already running
// finishes before Cancel returns and no handler starts afterward. Safe from
// any goroutine EXCEPT the caller's own callback queue; from inside a
// handler use CancelFromCallback instead, or Cancel deadlocks on the lock
// the running delivery holds.
func (s *Subscription) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.detach != nil {
		s.detach()
	}
}

// CancelFromCallback tears the subscription down from the delivery
// goroutine itself. The queue delivers serially, so when this runs no other
// delivery can be in flight and the lock barrier in Cancel is unnecessary.
func (s *Subscription) CancelFromCallback() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	if s.detach != nil {
		s.detach()
	}
}

// deliverLocked runs one queued callback under the delivery lock. The token
// is re-checked here rather than at enqueue time: a Cancel that lands
// between enqueue and dispatch wins, and the handler never runs.
func (s *Subscription) deliverLocked(fn func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.cancelled.Load() {
		return
	}
	fn()
}

// subKey identifies one event stream. Namespaces are part of the key, so a
// V1 subscription never observes V2 traffic for the same module and event.
type subKey struct {
	namespace string
	module    string
	event     string
}

// EventHub fans module events out to subscribed callers. Modules emit
// through a bound Emitter; the hub enqueues one callback per live
// subscription onto each subscriber's own queue and never blocks the
// emitting thread on caller-side code.
type EventHub struct {
	mu   sync.RWMutex
	subs map[subKey]map[string]*Subscription
	byID map[string]*Subscription

	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewEventHub builds an empty hub.
func NewEventHub(logger *slog.Logger, metrics *metric.Metrics) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		subs:    make(map[subKey]map[string]*Subscription),
		byID:    make(map[string]*Subscription),
		logger:  logger.With("component", "EventHub"),
		metrics: metrics,
	}
}

// Subscribe registers a handler for one module event. The handler runs on
// the given queue's delivery goroutine, never on the emitting thread.
func (h *EventHub) Subscribe(caller, namespace, moduleName, event string, queue *CallbackQueue, handler func(value.Value)) (*Subscription, error) {
	if caller == "" || namespace == "" || moduleName == "" || event == "" {
		return nil, errors.New(errors.KindInvalidTarget, "EventHub", "Subscribe",
			"caller, namespace, module, and event are all required")
	}
	if queue == nil {
		return nil, errors.New(errors.KindInvalidTarget, "EventHub", "Subscribe",
			"nil callback queue")
	}
	if handler == nil {
		return nil, errors.New(errors.KindInvalidTarget, "EventHub", "Subscribe",
			"nil handler")
	}

	sub := &Subscription{
		id:        uuid.NewString(),
		caller:    caller,
		namespace: namespace,
		module:    moduleName,
		event:     event,
		queue:     queue,
		handler:   handler,
	}
	sub.detach = func() { h.remove(sub) }

	key := subKey{namespace: namespace, module: moduleName, event: event}

	h.mu.Lock()
	bucket := h.subs[key]
	if bucket == nil {
		bucket = make(map[string]*Subscription)
		h.subs[key] = bucket
	}
	bucket[sub.id] = sub
	h.byID[sub.id] = sub
	active := h.countLocked(namespace, moduleName)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordSubscriptions(namespace, moduleName, active)
	}
	h.logger.Debug("subscription added",
		"subscription_id", sub.id,
		"caller", caller,
		"namespace", namespace,
		"module", moduleName,
		"event", event)
	return sub, nil
}

// Unsubscribe cancels the subscription with the given id. Unknown ids are a
// no-op so teardown is idempotent. Must not be called from inside the
// subscription's own handler; use UnsubscribeFromCallback there.
func (h *EventHub) Unsubscribe(id string) bool {
	h.mu.RLock()
	sub := h.byID[id]
	h.mu.RUnlock()
	if sub == nil {
		return false
	}
	sub.Cancel()
	return true
}

// UnsubscribeFromCallback cancels a subscription from code already running
// on the subscriber's delivery goroutine, such as a handler removing itself.
func (h *EventHub) UnsubscribeFromCallback(id string) bool {
	h.mu.RLock()
	sub := h.byID[id]
	h.mu.RUnlock()
	if sub == nil {
		return false
	}
	sub.CancelFromCallback()
	return true
}

// CancelAllForCaller tears down every subscription a caller holds. The
// gateway calls this when a connection drops so dead callers do not
// accumulate in the hub. Returns the number of subscriptions cancelled.
func (h *EventHub) CancelAllForCaller(caller string) int {
	h.mu.RLock()
	targets := make([]*Subscription, 0, 4)
	for _, sub := range h.byID {
		if sub.caller == caller {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.Cancel()
	}
	return len(targets)
}

// Publish enqueues the event onto every live subscriber's queue and returns
// the number of deliveries accepted. A full or stopped queue drops only that
// subscriber's delivery; emitting modules are never blocked or failed by a
// slow caller.
func (h *EventHub) Publish(namespace, moduleName, event string, payload value.Value) int {
	key := subKey{namespace: namespace, module: moduleName, event: event}

	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[key]))
	for _, sub := range h.subs[key] {
		if !sub.Cancelled() {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		sub := sub
		err := sub.queue.Enqueue(sub, func() { sub.handler(payload) })
		if err != nil {
			h.logger.Warn("event delivery dropped",
				"subscription_id", sub.id,
				"caller", sub.caller,
				"namespace", namespace,
				"module", moduleName,
				"event", event,
				"error", err)
			if h.metrics != nil {
				h.metrics.RecordError("EventHub", errors.KindOf(err).String())
			}
			continue
		}
		delivered++
	}

	if h.metrics != nil {
		h.metrics.RecordEventEmitted(namespace, moduleName, event)
	}
	return delivered
}

// Subscriptions returns the number of live subscriptions for one module.
func (h *EventHub) Subscriptions(namespace, moduleName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked(namespace, moduleName)
}

// Emitter returns the event sink handed to one registered module through
// Dependencies. Emissions from any module thread fan out through the hub.
func (h *EventHub) Emitter(namespace, moduleName string) module.Emitter {
	return &hubEmitter{hub: h, namespace: namespace, module: moduleName}
}

func (h *EventHub) remove(s *Subscription) {
	key := subKey{namespace: s.namespace, module: s.module, event: s.event}

	h.mu.Lock()
	if bucket := h.subs[key]; bucket != nil {
		delete(bucket, s.id)
		if len(bucket) == 0 {
			delete(h.subs, key)
		}
	}
	delete(h.byID, s.id)
	active := h.countLocked(s.namespace, s.module)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordSubscriptions(s.namespace, s.module, active)
	}
}

// countLocked sums live subscriptions across all events of one module.
// Callers hold h.mu.
func (h *EventHub) countLocked(namespace, moduleName string) int {
	total := 0
	for key, bucket := range h.subs {
		if key.namespace == namespace && key.module == moduleName {
			total += len(bucket)
		}
	}
	return total
}

type hubEmitter struct {
	hub       *EventHub
	namespace string
	module    string
}

func (e *hubEmitter) Emit(event string, payload value.Value) {
	e.hub.Publish(e.namespace, e.module, event, payload)
}
