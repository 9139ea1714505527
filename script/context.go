package script

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/c360/bridgekit/bridge"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/value"
)

// Interrupt payloads, visible in the interrupted error's value.
const (
	interruptTimeout = "script execution timeout"
	interruptClosed  = "script context closed"
)

// Deps carries a context's collaborators. Dispatcher and Hub are required.
type Deps struct {
	Dispatcher *bridge.Dispatcher
	Hub        *bridge.EventHub
	Logger     *slog.Logger
	Metrics    *metric.Metrics
}

// Context is one embedded JavaScript execution environment bound to a
// version namespace. The VM is only ever touched on the context's callback
// queue goroutine.
type Context struct {
	id        string
	namespace string
	cfg       Config
	deps      Deps
	logger    *slog.Logger

	vm    *goja.Runtime
	queue *bridge.CallbackQueue

	mu     sync.Mutex
	subIDs map[string]struct{}

	closed atomic.Bool
}

// NewContext builds and starts a script context for one namespace. The
// returned context is ready to run scripts; Close releases it.
func NewContext(namespace string, cfg Config, deps Deps) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Dispatcher == nil {
		return nil, errors.New(errors.KindInvalidTarget, "ScriptContext", "New",
			"nil dispatcher")
	}
	if deps.Hub == nil {
		return nil, errors.New(errors.KindInvalidTarget, "ScriptContext", "New",
			"nil event hub")
	}
	if namespace == "" {
		return nil, errors.New(errors.KindInvalidTarget, "ScriptContext", "New",
			"empty namespace")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Context{
		id:        "script-" + uuid.NewString(),
		namespace: namespace,
		cfg:       cfg,
		deps:      deps,
		vm:        goja.New(),
		subIDs:    make(map[string]struct{}),
	}
	c.logger = logger.With("component", "ScriptContext", "caller", c.id, "namespace", namespace)
	c.queue = bridge.NewCallbackQueue(c.id, cfg.QueueCapacity, logger, deps.Metrics)

	if err := c.bind(); err != nil {
		return nil, err
	}
	c.queue.Start()

	c.logger.Debug("script context opened")
	return c, nil
}

// ID returns the caller id the context dispatches under.
func (c *Context) ID() string { return c.id }

// Namespace returns the version namespace the context is bound to.
func (c *Context) Namespace() string { return c.namespace }

// Subscriptions returns the number of live event subscriptions.
func (c *Context) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subIDs)
}

// bind installs the bridge and console host objects.
func (c *Context) bind() error {
	bridgeObj := c.vm.NewObject()
	if err := bridgeObj.Set("call", c.jsCall); err != nil {
		return errors.Wrap(err, "ScriptContext", "New", "bind bridge.call")
	}
	if err := bridgeObj.Set("subscribe", c.jsSubscribe); err != nil {
		return errors.Wrap(err, "ScriptContext", "New", "bind bridge.subscribe")
	}
	if err := bridgeObj.Set("unsubscribe", c.jsUnsubscribe); err != nil {
		return errors.Wrap(err, "ScriptContext", "New", "bind bridge.unsubscribe")
	}
	if err := c.vm.Set("bridge", bridgeObj); err != nil {
		return errors.Wrap(err, "ScriptContext", "New", "bind bridge object")
	}

	console := c.vm.NewObject()
	if err := console.Set("log", c.jsConsole(slog.LevelInfo)); err != nil {
		return errors.Wrap(err, "ScriptContext", "New", "bind console.log")
	}
	if err := console.Set("warn", c.jsConsole(slog.LevelWarn)); err != nil {
		return errors.Wrap(err, "ScriptContext", "New", "bind console.warn")
	}
	if err := console.Set("error", c.jsConsole(slog.LevelError)); err != nil {
		return errors.Wrap(err, "ScriptContext", "New", "bind console.error")
	}
	if err := c.vm.Set("console", console); err != nil {
		return errors.Wrap(err, "ScriptContext", "New", "bind console object")
	}
	return nil
}

// RunString executes source on the VM goroutine and returns the script's
// completion value.
func (c *Context) RunString(src string) (value.Value, error) {
	return c.run("RunString", func() (goja.Value, error) { return c.vm.RunString(src) })
}

// RunProgram executes a pre-compiled program on the VM goroutine.
func (c *Context) RunProgram(p *goja.Program) (value.Value, error) {
	return c.run("RunProgram", func() (goja.Value, error) { return c.vm.RunProgram(p) })
}

// run enqueues one VM execution and waits for its outcome. The execution
// timeout is armed when the run actually starts, not when it is queued, so
// time spent behind queued event deliveries is not charged to the script.
func (c *Context) run(method string, exec func() (goja.Value, error)) (value.Value, error) {
	if c.closed.Load() {
		return value.Null(), errors.WrapTransient(errors.ErrShuttingDown, "ScriptContext", method,
			"run script")
	}

	type outcome struct {
		v   goja.Value
		err error
	}
	ch := make(chan outcome, 1)

	err := c.queue.Enqueue(nil, func() {
		fired := make(chan struct{})
		watchdog := time.AfterFunc(c.cfg.ExecTimeout, func() {
			c.vm.Interrupt(interruptTimeout)
			close(fired)
		})
		v, execErr := exec()
		if !watchdog.Stop() {
			// The watchdog won the race; wait for its interrupt to land so
			// the clear below cannot be overtaken by it.
			<-fired
		}
		if !c.closed.Load() {
			// Leave a close-driven interrupt sticky so queued runs die too.
			c.vm.ClearInterrupt()
		}
		ch <- outcome{v: v, err: execErr}
	})
	if err != nil {
		return value.Null(), err
	}

	out := <-ch
	if out.err != nil {
		return value.Null(), c.classifyRunError(method, out.err)
	}
	result, err := value.FromGo(exportGoja(out.v))
	if err != nil {
		return value.Null(), errors.WrapKind(errors.KindTypeMismatch, err, "ScriptContext", method,
			"convert script result")
	}
	return result, nil
}

func (c *Context) classifyRunError(method string, err error) error {
	var interrupted *goja.InterruptedError
	if stderrors.As(err, &interrupted) {
		if fmt.Sprint(interrupted.Value()) == interruptClosed {
			return errors.WrapTransient(errors.ErrShuttingDown, "ScriptContext", method, "run script")
		}
		return errors.WrapTimeout(err, "ScriptContext", method, "run script")
	}
	return errors.WrapNative(err, "ScriptContext", method, "run script")
}

// Close interrupts any running script, cancels the context's subscriptions,
// and drains the callback queue. Idempotent.
func (c *Context) Close(timeout time.Duration) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.vm.Interrupt(interruptClosed)

	c.mu.Lock()
	ids := make([]string, 0, len(c.subIDs))
	for id := range c.subIDs {
		ids = append(ids, id)
	}
	c.subIDs = make(map[string]struct{})
	c.mu.Unlock()
	for _, id := range ids {
		c.deps.Hub.Unsubscribe(id)
	}

	err := c.queue.Stop(timeout)
	c.logger.Debug("script context closed", "cancelled_subscriptions", len(ids))
	return err
}

// jsCall implements bridge.call(module, method, ...args). It dispatches and
// parks the VM goroutine on the completion; the dispatcher's timeout
// machinery guarantees the wait ends.
func (c *Context) jsCall(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 2 {
		c.throw(errors.New(errors.KindTypeMismatch, "ScriptContext", "call",
			"bridge.call needs a module and a method"))
	}
	moduleName := call.Arguments[0].String()
	methodName := call.Arguments[1].String()

	args := make([]value.Value, 0, len(call.Arguments)-2)
	for i, raw := range call.Arguments[2:] {
		v, err := value.FromGo(exportGoja(raw))
		if err != nil {
			c.throw(errors.Newf(errors.KindTypeMismatch, "ScriptContext", "call",
				"argument %d: %v", i+1, err))
		}
		args = append(args, v)
	}

	p, err := c.deps.Dispatcher.Invoke(bridge.Invocation{
		CallerID:  c.id,
		Namespace: c.namespace,
		Module:    moduleName,
		Method:    methodName,
		Args:      args,
		Timeout:   c.cfg.CallTimeout,
	})
	if err != nil {
		c.throw(err)
	}

	completion := <-p.Done()
	if completion.IsError() {
		c.throwWire(completion.Err)
	}
	return c.vm.ToValue(completion.Result.Export())
}

// jsSubscribe implements bridge.subscribe(module, event, fn). The handler
// runs on this context's queue goroutine, so touching the VM inside it is
// safe. Returns the subscription id.
func (c *Context) jsSubscribe(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 3 {
		c.throw(errors.New(errors.KindTypeMismatch, "ScriptContext", "subscribe",
			"bridge.subscribe needs a module, an event, and a function"))
	}
	moduleName := call.Arguments[0].String()
	eventName := call.Arguments[1].String()
	fn, ok := goja.AssertFunction(call.Arguments[2])
	if !ok {
		c.throw(errors.New(errors.KindTypeMismatch, "ScriptContext", "subscribe",
			"bridge.subscribe handler must be a function"))
	}

	handler := func(payload value.Value) {
		if _, err := fn(goja.Undefined(), c.vm.ToValue(payload.Export())); err != nil {
			c.logger.Warn("subscription handler failed",
				"module", moduleName, "event", eventName, "error", err)
		}
	}

	sub, err := c.deps.Hub.Subscribe(c.id, c.namespace, moduleName, eventName, c.queue, handler)
	if err != nil {
		c.throw(err)
	}

	c.mu.Lock()
	c.subIDs[sub.ID()] = struct{}{}
	c.mu.Unlock()
	return c.vm.ToValue(sub.ID())
}

// jsUnsubscribe implements bridge.unsubscribe(id). It runs on the queue
// goroutine, so the hub's from-callback teardown applies. Returns whether
// the id was live.
func (c *Context) jsUnsubscribe(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 1 {
		c.throw(errors.New(errors.KindTypeMismatch, "ScriptContext", "unsubscribe",
			"bridge.unsubscribe needs a subscription id"))
	}
	id := call.Arguments[0].String()

	c.mu.Lock()
	delete(c.subIDs, id)
	c.mu.Unlock()

	return c.vm.ToValue(c.deps.Hub.UnsubscribeFromCallback(id))
}

// jsConsole maps one console level onto slog.
func (c *Context) jsConsole(level slog.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = fmt.Sprint(arg.Export())
		}
		c.logger.Log(context.Background(), level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// throw raises err into the VM as a {kind, message} object. Never returns.
func (c *Context) throw(err error) {
	c.throwWire(errors.ToWire(err))
}

func (c *Context) throwWire(wire *errors.WireError) {
	obj := c.vm.NewObject()
	_ = obj.Set("name", "BridgeError")
	_ = obj.Set("kind", wire.Kind)
	_ = obj.Set("message", wire.Message)
	panic(obj)
}

// exportGoja unwraps a goja value to plain Go, mapping undefined to nil.
func exportGoja(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
