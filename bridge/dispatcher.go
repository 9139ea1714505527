package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/pkg/worker"
	"github.com/c360/bridgekit/value"
)

// Config tunes the dispatcher.
type Config struct {
	// DefaultTimeout applies when an invocation carries no timeout.
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"`
	// MaxTimeout caps caller-supplied timeouts.
	MaxTimeout time.Duration `json:"max_timeout" yaml:"max_timeout"`
	// Workers is the native execution pool size.
	Workers int `json:"workers" yaml:"workers"`
	// QueueSize bounds the execution pool's task queue.
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     5 * time.Minute,
		Workers:        16,
		QueueSize:      1024,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.DefaultTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Dispatcher", "Validate",
			"default_timeout must be positive")
	}
	if c.MaxTimeout < c.DefaultTimeout {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Dispatcher", "Validate",
			"max_timeout must be at least default_timeout")
	}
	if c.Workers <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Dispatcher", "Validate",
			"workers must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Dispatcher", "Validate",
			"queue_size must be positive")
	}
	return nil
}

// Deps carries the dispatcher's collaborators. Table is required; everything
// else may be nil and degrades to no-ops or defaults.
type Deps struct {
	Table     *module.NamespaceTable
	Logger    *slog.Logger
	Metrics   *metric.Metrics
	Registry  *metric.MetricsRegistry
	Inspector *Inspector
}

// Dispatcher routes invocations from callers to native module handlers. It
// owns the uniform asynchronous contract: every call resolves, validates,
// and queues even when the handler would complete synchronously. Responses
// travel back through the PendingRequest completion slot and are correlated
// by request id; nothing is ever delivered by position or arrival order.
type Dispatcher struct {
	cfg       Config
	table     *module.NamespaceTable
	logger    *slog.Logger
	metrics   *metric.Metrics
	inspector *Inspector

	pool  *worker.Pool[*dispatchTask]
	lanes *laneSet

	mu       sync.Mutex
	inflight map[string]*PendingRequest

	// closeMu lets Stop wait out in-flight Invoke calls before it tears the
	// pool down, so no submission can race the pool's closed queue.
	closeMu sync.RWMutex
	started atomic.Bool
	closed  atomic.Bool
}

// NewDispatcher builds a dispatcher over the given namespace table.
func NewDispatcher(cfg Config, deps Deps) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Table == nil {
		return nil, errors.New(errors.KindInvalidTarget, "Dispatcher", "New",
			"nil namespace table")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:       cfg,
		table:     deps.Table,
		logger:    logger.With("component", "Dispatcher"),
		metrics:   deps.Metrics,
		inspector: deps.Inspector,
		lanes:     newLaneSet(),
		inflight:  make(map[string]*PendingRequest),
	}

	var opts []worker.Option[*dispatchTask]
	if deps.Registry != nil {
		opts = append(opts, worker.WithMetricsRegistry[*dispatchTask](deps.Registry, "bridgekit_dispatch_pool"))
	}
	d.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, d.process, opts...)

	return d, nil
}

// Start launches the native execution pool. The context bounds the pool
// workers' lifetime; cancelling it abandons queued work, so hosts normally
// cancel only after Stop.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.Wrap(errors.ErrAlreadyStarted, "Dispatcher", "Start", "start")
	}
	if err := d.pool.Start(ctx); err != nil {
		d.started.Store(false)
		return errors.Wrap(err, "Dispatcher", "Start", "start worker pool")
	}
	d.logger.Info("dispatcher started",
		"workers", d.cfg.Workers,
		"queue_size", d.cfg.QueueSize,
		"default_timeout", d.cfg.DefaultTimeout,
		"max_timeout", d.cfg.MaxTimeout)
	return nil
}

// Invoke dispatches one invocation. The returned PendingRequest resolves
// with exactly one Completion; a non-nil error here means the invocation was
// rejected before dispatch (unknown version, unknown module or method, bad
// arguments, closed dispatcher) and no PendingRequest was created. An empty
// RequestID is assigned one; an empty or non-positive Timeout takes the
// configured default, and oversized timeouts are clamped.
func (d *Dispatcher) Invoke(inv Invocation) (*PendingRequest, error) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed.Load() {
		return nil, errors.WrapTransient(errors.ErrDispatcherClosed, "Dispatcher", "Invoke",
			"dispatch "+inv.Module+"."+inv.Method)
	}
	if !d.started.Load() {
		return nil, errors.WrapTransient(errors.ErrNotStarted, "Dispatcher", "Invoke",
			"dispatch "+inv.Module+"."+inv.Method)
	}
	if inv.CallerID == "" {
		return nil, errors.New(errors.KindInvalidTarget, "Dispatcher", "Invoke",
			"empty caller id")
	}
	if inv.RequestID == "" {
		inv.RequestID = NewRequestID()
	}

	desc, err := d.table.Resolve(inv.Namespace, inv.Module)
	if err != nil {
		d.reject(inv, err)
		return nil, err
	}
	m, ok := desc.Method(inv.Method)
	if !ok {
		err := errors.Newf(errors.KindNotFound, "Dispatcher", "Invoke",
			"module %q has no method %q", inv.Module, inv.Method)
		d.reject(inv, err)
		return nil, err
	}
	if err := m.Signature.Check(inv.Module, inv.Method, inv.Args); err != nil {
		d.reject(inv, err)
		return nil, err
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = d.cfg.DefaultTimeout
	}
	if timeout > d.cfg.MaxTimeout {
		timeout = d.cfg.MaxTimeout
	}
	inv.Timeout = timeout

	p := newPendingRequest(inv)

	d.mu.Lock()
	if _, dup := d.inflight[p.ID()]; dup {
		d.mu.Unlock()
		return nil, errors.Newf(errors.KindInvalidTarget, "Dispatcher", "Invoke",
			"request id %q is already in flight", p.ID())
	}
	d.inflight[p.ID()] = p
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.RecordInvocation(inv.Namespace, inv.Module, inv.Method)
	}
	if d.inspector != nil {
		d.inspector.Record(invokeRecord(inv))
	}
	d.logger.Debug("request dispatched",
		"request_id", p.ID(),
		"caller", inv.CallerID,
		"namespace", inv.Namespace,
		"module", inv.Module,
		"method", inv.Method,
		"timeout", timeout)

	p.armTimer(time.AfterFunc(timeout, func() {
		d.fail(p, errors.Newf(errors.KindTimeout, "Dispatcher", "dispatch",
			"%s.%s did not complete within %s", p.Module(), p.Method(), timeout))
	}))

	if first := d.lanes.enqueue(&dispatchTask{pending: p, method: m, inv: inv}); first != nil {
		d.submit(first)
	}
	return p, nil
}

// InFlight returns the number of unresolved requests.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Queued returns the number of tasks waiting in ordered lanes, excluding
// tasks already inside the pool.
func (d *Dispatcher) Queued() int {
	return d.lanes.depth()
}

// Stop drains the dispatcher: new invocations are refused, lane-queued work
// fails with a shutdown error, pool workers finish their current handlers
// within the timeout, and any request still unresolved afterwards fails so
// no caller waits on a dead host.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Barrier: wait out Invoke calls already past the closed check.
	d.closeMu.Lock()
	d.closeMu.Unlock()

	d.logger.Info("dispatcher stopping",
		"in_flight", d.InFlight(),
		"lane_queued", d.lanes.depth())

	for _, t := range d.lanes.drain() {
		d.fail(t.pending, errors.WrapTransient(errors.ErrShuttingDown, "Dispatcher", "Stop",
			"dispatch "+t.inv.Module+"."+t.inv.Method))
	}

	poolErr := d.pool.Stop(timeout)

	d.mu.Lock()
	leftovers := make([]*PendingRequest, 0, len(d.inflight))
	for _, p := range d.inflight {
		leftovers = append(leftovers, p)
	}
	d.mu.Unlock()
	for _, p := range leftovers {
		d.fail(p, errors.WrapTransient(errors.ErrShuttingDown, "Dispatcher", "Stop",
			"dispatch "+p.Module()+"."+p.Method()))
	}

	if poolErr != nil {
		return errors.Wrap(poolErr, "Dispatcher", "Stop", "stop worker pool")
	}
	d.logger.Info("dispatcher stopped")
	return nil
}

// process executes one task on a pool worker. The lane advances when the
// task finishes, never before, which is what keeps per-(caller, module)
// issuance order intact.
func (d *Dispatcher) process(ctx context.Context, t *dispatchTask) error {
	defer d.advance(t)

	p := t.pending
	if p.Completed() {
		// Timed out or shut down while waiting in the lane; skip the handler
		// so a dead request does not occupy a worker.
		return nil
	}

	callCtx, cancel := context.WithDeadline(ctx, p.created.Add(t.inv.Timeout))
	defer cancel()

	result, err := t.method.Func(callCtx, t.inv.Args)
	if err != nil {
		d.fail(p, d.handlerError(err, t))
		return nil
	}
	d.complete(p, result)
	return nil
}

// handlerError keeps a handler's own classification and wraps everything
// else as the native_failure catch-all.
func (d *Dispatcher) handlerError(err error, t *dispatchTask) error {
	if errors.KindOf(err) != errors.KindNativeFailure {
		return err
	}
	return errors.WrapNative(err, t.inv.Module, t.inv.Method, "native call")
}

// advance releases the task's lane and submits the next waiter, if any.
func (d *Dispatcher) advance(t *dispatchTask) {
	if next := d.lanes.next(t.key()); next != nil {
		d.submit(next)
	}
}

// submit hands a task to the pool. When the pool refuses, the task's request
// fails and the lane advances to the next waiter, so one rejection never
// stalls the tasks queued behind it.
func (d *Dispatcher) submit(t *dispatchTask) {
	for t != nil {
		err := d.pool.Submit(t)
		if err == nil {
			return
		}
		d.fail(t.pending, errors.WrapTransient(err, "Dispatcher", "dispatch",
			"queue "+t.inv.Module+"."+t.inv.Method))
		t = d.lanes.next(t.key())
	}
}

func (d *Dispatcher) complete(p *PendingRequest, result value.Value) {
	if p.Complete(result) {
		d.onCompleted(p, Completion{RequestID: p.ID(), Result: result})
	}
}

func (d *Dispatcher) fail(p *PendingRequest, err error) {
	if p.Fail(err) {
		d.onCompleted(p, Completion{RequestID: p.ID(), Err: errors.ToWire(err)})
	}
}

// onCompleted runs exactly once per request, on whichever goroutine won the
// completion race.
func (d *Dispatcher) onCompleted(p *PendingRequest, c Completion) {
	d.mu.Lock()
	delete(d.inflight, p.ID())
	d.mu.Unlock()

	status := c.Status()
	if d.metrics != nil {
		d.metrics.RecordCompletion(p.Namespace(), p.Module(), p.Method(), status)
		d.metrics.RecordDispatchDuration(p.Namespace(), p.Module(), p.Method(), p.Age())
		if c.IsError() {
			d.metrics.RecordError("Dispatcher", c.Err.Kind)
		}
	}
	if d.inspector != nil {
		d.inspector.Record(completionRecord(p, c))
	}
	d.logger.Debug("request completed",
		"request_id", p.ID(),
		"caller", p.CallerID(),
		"module", p.Module(),
		"method", p.Method(),
		"status", status,
		"elapsed", p.Age())
}

// reject accounts for an invocation refused before a PendingRequest existed.
func (d *Dispatcher) reject(inv Invocation, err error) {
	if d.metrics != nil {
		d.metrics.RecordError("Dispatcher", errors.KindOf(err).String())
	}
	d.logger.Debug("invocation rejected",
		"caller", inv.CallerID,
		"namespace", inv.Namespace,
		"module", inv.Module,
		"method", inv.Method,
		"error", err)
}
