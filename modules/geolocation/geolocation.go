package geolocation

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/value"
)

// ModuleName is the logical name the module registers under.
const ModuleName = "Geolocation"

// EventPositionChanged carries one {watchId, position} payload per accepted
// watch fix.
const EventPositionChanged = "positionDidChange"

// watch is one live position feed. Teardown follows the subscription
// pattern: the cancellation token is re-checked under the delivery lock, so
// a fix in flight when cancel lands either completes first or never emits.
type watch struct {
	id             int64
	distanceFilter float64

	cancelled atomic.Bool
	deliverMu sync.Mutex
	stop      func()
	lastFix   *Fix
}

// deliver runs one emit under the delivery lock, applying the distance
// filter against the previously emitted fix.
func (w *watch) deliver(fix Fix, emit func(Fix)) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	if w.cancelled.Load() {
		return
	}
	if w.lastFix != nil && w.distanceFilter > 0 &&
		haversineMeters(*w.lastFix, fix) < w.distanceFilter {
		return
	}
	f := fix
	w.lastFix = &f
	emit(fix)
}

// setStop installs the source's stop function, invoking it immediately when
// cancellation already won the race.
func (w *watch) setStop(stop func()) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	if w.cancelled.Load() {
		stop()
		return
	}
	w.stop = stop
}

// cancel tears the feed down. After cancel returns, no fix for this watch is
// delivered.
func (w *watch) cancel() {
	if !w.cancelled.CompareAndSwap(false, true) {
		return
	}
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	if w.stop != nil {
		w.stop()
	}
}

// Module is the geolocation capability module for one version namespace.
type Module struct {
	cfg       Config
	namespace module.Namespace
	deps      module.Dependencies
	logger    *slog.Logger
	source    Source

	watchMu     sync.Mutex
	watches     map[int64]*watch
	nextWatchID atomic.Int64
	watchCtx    context.Context
	watchCancel context.CancelFunc

	lifecycleMu sync.Mutex
	running     bool
	startTime   time.Time

	errorCount atomic.Int64
	lastError  atomic.Pointer[string]
}

// New creates a geolocation module bound to a version namespace. A nil
// source gets a push-driven simulated one.
func New(namespace string, cfg Config, deps module.Dependencies, source Source) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ns := module.Namespace(namespace)
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		source = NewSimulatedSource(Fix{Accuracy: 1000}, 0)
	}

	return &Module{
		cfg:       cfg,
		namespace: ns,
		deps:      deps,
		logger:    deps.GetLoggerWithModule(ModuleName).With("namespace", namespace),
		source:    source,
		watches:   make(map[int64]*watch),
	}, nil
}

// Meta returns basic module information.
func (m *Module) Meta() module.Metadata {
	return module.Metadata{
		Name:        ModuleName,
		Type:        "device",
		Description: "Position reads and continuous position watches",
		Version:     "1.0.0",
	}
}

// Methods returns the declared capability set.
func (m *Module) Methods() []module.Method {
	return []module.Method{
		{
			Name:        "getCurrentPosition",
			Description: "Return the best available position fix",
			Signature: value.Signature{
				Params: []value.Param{value.Opt("options", value.TypeMap)},
				Result: value.TypeMap,
			},
			Func: m.handleGetCurrentPosition,
		},
		{
			Name:        "watchPosition",
			Description: "Start a position feed and return its watch id",
			Signature: value.Signature{
				Params: []value.Param{value.Opt("options", value.TypeMap)},
				Result: value.TypeNumber,
			},
			Func: m.handleWatchPosition,
		},
		{
			Name:        "clearWatch",
			Description: "Stop a position feed; unknown ids are a no-op",
			Signature: value.Signature{
				Params: []value.Param{value.P("id", value.TypeNumber)},
				Result: value.TypeNull,
			},
			Func: m.handleClearWatch,
		},
	}
}

// Events returns the event streams the module emits.
func (m *Module) Events() []module.EventDef {
	return []module.EventDef{
		{
			Name:        EventPositionChanged,
			Description: "Emitted once per accepted watch fix with a {watchId, position} payload",
			Payload:     value.TypeMap,
		},
	}
}

// ConfigSchema returns the configuration schema for this module.
func (m *Module) ConfigSchema() module.ConfigSchema {
	minWatches := 1
	return module.ConfigSchema{
		Properties: map[string]module.PropertySchema{
			"request_timeout_seconds": {
				Type:        "int",
				Description: "Default bound on one position read, in seconds",
				Default:     int(DefaultConfig().RequestTimeout / time.Second),
			},
			"max_watches": {
				Type:        "int",
				Description: "Concurrent position watch cap",
				Default:     DefaultConfig().MaxWatches,
				Minimum:     &minWatches,
			},
		},
	}
}

// Health returns current health status.
func (m *Module) Health() module.HealthStatus {
	m.lifecycleMu.Lock()
	running := m.running
	startTime := m.startTime
	m.lifecycleMu.Unlock()

	status := module.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(m.errorCount.Load()),
	}
	if last := m.lastError.Load(); last != nil {
		status.LastError = *last
	}
	if running {
		status.Uptime = time.Since(startTime)
	}
	return status
}

// Descriptor exports the module's registration record for a namespace. The
// namespace must be the one the module was constructed for.
func (m *Module) Descriptor(namespace string) (*module.ModuleDescriptor, error) {
	if module.Namespace(namespace) != m.namespace {
		return nil, errors.Newf(errors.KindInvalidTarget, "Geolocation", "Descriptor",
			"module is bound to namespace %q, not %q", m.namespace, namespace)
	}
	return module.NewDescriptor(m.namespace, m)
}

// Initialize is a no-op; the source is bound at construction.
func (m *Module) Initialize() error {
	return nil
}

// Start opens the module-lifetime context position feeds run under.
func (m *Module) Start(_ context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Geolocation", "Start", "check running state")
	}

	m.watchMu.Lock()
	m.watchCtx, m.watchCancel = context.WithCancel(context.Background())
	m.watchMu.Unlock()

	m.running = true
	m.startTime = time.Now()
	m.logger.Info("geolocation module started", "max_watches", m.cfg.MaxWatches)
	return nil
}

// Stop cancels every live watch. After Stop returns, no watch emits.
func (m *Module) Stop(_ time.Duration) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchCancel()
	}
	targets := make([]*watch, 0, len(m.watches))
	for _, w := range m.watches {
		targets = append(targets, w)
	}
	m.watches = make(map[int64]*watch)
	m.watchMu.Unlock()

	for _, w := range targets {
		w.cancel()
	}
	return nil
}

// Watches returns the number of live position feeds.
func (m *Module) Watches() int {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	return len(m.watches)
}

func (m *Module) handleGetCurrentPosition(ctx context.Context, args []value.Value) (value.Value, error) {
	opts, err := m.parseOptions("getCurrentPosition", args)
	if err != nil {
		return value.Null(), err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.cfg.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fix, err := m.source.Current(ctx, opts)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return value.Null(), m.fail(errors.WrapTimeout(err, "Geolocation", "getCurrentPosition",
				"read position"))
		}
		return value.Null(), m.fail(errors.WrapNative(err, "Geolocation", "getCurrentPosition",
			"read position"))
	}
	return positionValue(fix), nil
}

func (m *Module) handleWatchPosition(_ context.Context, args []value.Value) (value.Value, error) {
	opts, err := m.parseOptions("watchPosition", args)
	if err != nil {
		return value.Null(), err
	}

	m.watchMu.Lock()
	if m.watchCtx == nil || m.watchCtx.Err() != nil {
		m.watchMu.Unlock()
		return value.Null(), errors.WrapTransient(errors.ErrNotStarted, "Geolocation", "watchPosition",
			"open feed")
	}
	if len(m.watches) >= m.cfg.MaxWatches {
		m.watchMu.Unlock()
		return value.Null(), m.fail(errors.Newf(errors.KindNativeFailure, "Geolocation", "watchPosition",
			"watch limit %d reached", m.cfg.MaxWatches))
	}
	id := m.nextWatchID.Add(1)
	w := &watch{id: id, distanceFilter: opts.DistanceFilter}
	m.watches[id] = w
	feedCtx := m.watchCtx
	m.watchMu.Unlock()

	// The feed outlives this invocation, so it runs under the module
	// context, never the per-call one.
	stop, err := m.source.Watch(feedCtx, opts, func(fix Fix) {
		w.deliver(fix, func(accepted Fix) { m.emitFix(id, accepted) })
	})
	if err != nil {
		m.removeWatch(id)
		return value.Null(), m.fail(errors.WrapNative(err, "Geolocation", "watchPosition", "open feed"))
	}
	w.setStop(stop)

	m.logger.Debug("position watch opened", "watch_id", id,
		"high_accuracy", opts.HighAccuracy, "distance_filter", opts.DistanceFilter)
	return value.NewNumber(float64(id)), nil
}

func (m *Module) handleClearWatch(_ context.Context, args []value.Value) (value.Value, error) {
	raw, err := args[0].NumberVal()
	if err != nil {
		return value.Null(), err
	}
	id := int64(raw)

	w := m.removeWatch(id)
	if w == nil {
		m.logger.Debug("clearWatch for unknown id", "watch_id", id)
		return value.Null(), nil
	}
	w.cancel()
	m.logger.Debug("position watch cleared", "watch_id", id)
	return value.Null(), nil
}

// removeWatch unlinks one watch from the table and returns it, or nil when
// the id is unknown.
func (m *Module) removeWatch(id int64) *watch {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	w := m.watches[id]
	delete(m.watches, id)
	return w
}

// emitFix publishes one accepted fix on the positionDidChange stream.
func (m *Module) emitFix(id int64, fix Fix) {
	m.deps.Emit(EventPositionChanged, value.NewMap(map[string]value.Value{
		"watchId":  value.NewNumber(float64(id)),
		"position": positionValue(fix),
	}))
}

// parseOptions reads the option bag. Unknown keys are ignored the way script
// option bags tolerate extras; known keys with wrong types are rejected.
func (m *Module) parseOptions(method string, args []value.Value) (Options, error) {
	if len(args) == 0 || args[0].IsNull() {
		return Options{}, nil
	}
	raw, err := args[0].MapVal()
	if err != nil {
		return Options{}, err
	}

	var opts Options
	for key, v := range raw {
		switch key {
		case "enableHighAccuracy":
			b, err := v.BoolVal()
			if err != nil {
				return Options{}, optionError(method, key, err)
			}
			opts.HighAccuracy = b
		case "timeout":
			ms, err := nonNegativeNumber(method, key, v)
			if err != nil {
				return Options{}, err
			}
			opts.Timeout = time.Duration(ms) * time.Millisecond
		case "maximumAge":
			ms, err := nonNegativeNumber(method, key, v)
			if err != nil {
				return Options{}, err
			}
			opts.MaximumAge = time.Duration(ms) * time.Millisecond
		case "distanceFilter":
			meters, err := nonNegativeNumber(method, key, v)
			if err != nil {
				return Options{}, err
			}
			opts.DistanceFilter = meters
		}
	}
	return opts, nil
}

func nonNegativeNumber(method, key string, v value.Value) (float64, error) {
	n, err := v.NumberVal()
	if err != nil {
		return 0, optionError(method, key, err)
	}
	if n < 0 {
		return 0, errors.Newf(errors.KindTypeMismatch, "Geolocation", method,
			"option %q must not be negative", key)
	}
	return n, nil
}

func optionError(method, key string, err error) error {
	return errors.Newf(errors.KindTypeMismatch, "Geolocation", method,
		"option %q: %v", key, err)
}

// positionValue builds the {lat, lon, accuracy, timestamp} wire map.
func positionValue(fix Fix) value.Value {
	return value.NewMap(map[string]value.Value{
		"lat":       value.NewNumber(fix.Lat),
		"lon":       value.NewNumber(fix.Lon),
		"accuracy":  value.NewNumber(fix.Accuracy),
		"timestamp": value.NewNumber(float64(fix.Timestamp.UnixMilli())),
	})
}

// fail records a source failure for health reporting and passes it through.
func (m *Module) fail(err error) error {
	m.errorCount.Add(1)
	msg := err.Error()
	m.lastError.Store(&msg)
	return err
}

// Register builds, initializes, and registers one geolocation module per
// namespace tag. A nil source gives each namespace its own simulated one;
// hosts binding platform location services construct modules with New.
func Register(table *module.NamespaceTable, cfg Config, deps module.Dependencies,
	source Source, namespaces ...string) ([]*Module, error) {
	mods := make([]*Module, 0, len(namespaces))
	for _, tag := range namespaces {
		m, err := New(tag, cfg, deps, source)
		if err != nil {
			return nil, err
		}
		if err := m.Initialize(); err != nil {
			return nil, err
		}
		desc, err := m.Descriptor(tag)
		if err != nil {
			return nil, err
		}
		reg, err := table.NamespaceFor(tag)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(desc); err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}
