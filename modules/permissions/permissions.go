package permissions

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/value"
)

// ModuleName is the logical name the module registers under.
const ModuleName = "Permissions"

// ErrNoGranter reports an ask on a host that bound no granter.
var ErrNoGranter = stderrors.New("permissions: no granter bound")

// Status of one permission type.
type Status string

// Permission statuses.
const (
	StatusGranted      Status = "granted"
	StatusDenied       Status = "denied"
	StatusUndetermined Status = "undetermined"
)

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	switch s {
	case StatusGranted, StatusDenied, StatusUndetermined:
		return true
	default:
		return false
	}
}

// Known permission types.
const (
	TypeCamera           = "camera"
	TypeMicrophone       = "microphone"
	TypeLocation         = "location"
	TypeNotifications    = "notifications"
	TypeContacts         = "contacts"
	TypeCalendar         = "calendar"
	TypeReminders        = "reminders"
	TypeMediaLibrary     = "mediaLibrary"
	TypeSystemBrightness = "systemBrightness"
)

var knownTypes = map[string]bool{
	TypeCamera:           true,
	TypeMicrophone:       true,
	TypeLocation:         true,
	TypeNotifications:    true,
	TypeContacts:         true,
	TypeCalendar:         true,
	TypeReminders:        true,
	TypeMediaLibrary:     true,
	TypeSystemBrightness: true,
}

// ValidType reports whether t names a known permission type.
func ValidType(t string) bool {
	return knownTypes[t]
}

// KnownTypes returns the closed permission type vocabulary, sorted.
func KnownTypes() []string {
	types := make([]string, 0, len(knownTypes))
	for t := range knownTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Module is the permissions capability module for one version namespace.
type Module struct {
	cfg       Config
	namespace module.Namespace
	deps      module.Dependencies
	logger    *slog.Logger
	granter   Granter

	mu       sync.RWMutex
	statuses map[string]Status

	lifecycleMu sync.Mutex
	running     bool
	startTime   time.Time

	errorCount atomic.Int64
	lastError  atomic.Pointer[string]
}

// New creates a permissions module bound to a version namespace. A nil
// granter is allowed; asks then fail with ErrNoGranter while gets still
// serve.
func New(namespace string, cfg Config, deps module.Dependencies, granter Granter) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ns := module.Namespace(namespace)
	if err := ns.Validate(); err != nil {
		return nil, err
	}

	return &Module{
		cfg:       cfg,
		namespace: ns,
		deps:      deps,
		logger:    deps.GetLoggerWithModule(ModuleName).With("namespace", namespace),
		granter:   granter,
		statuses:  make(map[string]Status),
	}, nil
}

// Meta returns basic module information.
func (m *Module) Meta() module.Metadata {
	return module.Metadata{
		Name:        ModuleName,
		Type:        "system",
		Description: "Permission status queries and host-mediated grant flows",
		Version:     "1.0.0",
	}
}

// Methods returns the declared capability set.
func (m *Module) Methods() []module.Method {
	return []module.Method{
		{
			Name:        "get",
			Description: "Return the current status of each requested permission type",
			Signature: value.Signature{
				Params: []value.Param{value.P("types", value.TypeList)},
				Result: value.TypeMap,
			},
			Func: m.handleGet,
		},
		{
			Name:        "ask",
			Description: "Run the grant flow for the requested permission types",
			Signature: value.Signature{
				Params: []value.Param{value.P("types", value.TypeList)},
				Result: value.TypeMap,
			},
			Func: m.handleAsk,
		},
	}
}

// Events returns nil; permission changes surface through method results.
func (m *Module) Events() []module.EventDef {
	return nil
}

// ConfigSchema returns the configuration schema for this module.
func (m *Module) ConfigSchema() module.ConfigSchema {
	minSeconds := 1
	return module.ConfigSchema{
		Properties: map[string]module.PropertySchema{
			"ask_timeout_seconds": {
				Type:        "int",
				Description: "Upper bound on one grant flow, in seconds",
				Default:     int(DefaultConfig().AskTimeout / time.Second),
				Minimum:     &minSeconds,
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
		return nil, errors.Newf(errors.KindInvalidTarget, "Permissions", "Descriptor",
			"module is bound to namespace %q, not %q", m.namespace, namespace)
	}
	return module.NewDescriptor(m.namespace, m)
}

// Initialize seeds statuses from the configuration.
func (m *Module) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for typ, status := range m.cfg.Initial {
		m.statuses[typ] = status
	}
	return nil
}

// Start marks the module running.
func (m *Module) Start(_ context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Permissions", "Start", "check running state")
	}
	m.running = true
	m.startTime = time.Now()
	m.logger.Info("permissions module started", "granter_bound", m.granter != nil)
	return nil
}

// Stop marks the module stopped.
func (m *Module) Stop(_ time.Duration) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	m.running = false
	return nil
}

func (m *Module) handleGet(_ context.Context, args []value.Value) (value.Value, error) {
	types, err := m.requestedTypes(args[0], "get")
	if err != nil {
		return value.Null(), err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return statusMap(types, m.statuses), nil
}

// handleAsk runs the grant flow. The granter's callback may fire from any
// goroutine; the first delivery wins and later ones are dropped.
func (m *Module) handleAsk(ctx context.Context, args []value.Value) (value.Value, error) {
	types, err := m.requestedTypes(args[0], "ask")
	if err != nil {
		return value.Null(), err
	}
	if m.granter == nil {
		return value.Null(), m.fail(errors.WrapNative(ErrNoGranter, "Permissions", "ask",
			"start grant flow"))
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.AskTimeout)
	defer cancel()

	resultCh := make(chan map[string]Status, 1)
	var delivered atomic.Bool
	grant := func(results map[string]Status) {
		if !delivered.CompareAndSwap(false, true) {
			m.logger.Warn("duplicate grant callback dropped", "types", types)
			return
		}
		resultCh <- results
	}

	if err := m.granter.RequestPermissions(ctx, types, grant); err != nil {
		return value.Null(), m.fail(errors.WrapNative(err, "Permissions", "ask", "start grant flow"))
	}

	select {
	case results := <-resultCh:
		merged := m.applyGrant(types, results)
		return statusMap(types, merged), nil
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return value.Null(), m.fail(errors.WrapTimeout(ctx.Err(), "Permissions", "ask",
				"await grant callback"))
		}
		return value.Null(), m.fail(errors.WrapTransient(ctx.Err(), "Permissions", "ask",
			"await grant callback"))
	}
}

// requestedTypes validates the raw argument into a list of known permission
// types.
func (m *Module) requestedTypes(arg value.Value, method string) ([]string, error) {
	items, err := arg.ListVal()
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(items))
	for i, item := range items {
		typ, err := item.StringVal()
		if err != nil {
			return nil, errors.Newf(errors.KindTypeMismatch, "Permissions", method,
				"types[%d]: expected string, got %s", i, item.Type())
		}
		if !ValidType(typ) {
			return nil, errors.Newf(errors.KindTypeMismatch, "Permissions", method,
				"unknown permission type %q", typ)
		}
		types = append(types, typ)
	}
	return types, nil
}

// applyGrant merges granter results into the stored statuses and returns the
// store's view for the requested types. Statuses the granter invented are
// dropped in favor of what is already stored.
func (m *Module) applyGrant(types []string, results map[string]Status) map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, typ := range types {
		status, ok := results[typ]
		if !ok {
			continue
		}
		if !status.Valid() {
			m.logger.Warn("granter returned unknown status", "type", typ, "status", status)
			continue
		}
		m.statuses[typ] = status
	}

	merged := make(map[string]Status, len(types))
	for _, typ := range types {
		merged[typ] = m.statusLocked(typ)
	}
	return merged
}

// statusLocked reads one status with m.mu held.
func (m *Module) statusLocked(typ string) Status {
	if status, ok := m.statuses[typ]; ok {
		return status
	}
	return StatusUndetermined
}

// statusMap builds the wire result for the requested types. Types missing
// from statuses report undetermined.
func statusMap(types []string, statuses map[string]Status) value.Value {
	out := make(map[string]value.Value, len(types))
	for _, typ := range types {
		status, ok := statuses[typ]
		if !ok {
			status = StatusUndetermined
		}
		out[typ] = value.NewString(string(status))
	}
	return value.NewMap(out)
}

// fail records a grant flow failure for health reporting and passes it
// through.
func (m *Module) fail(err error) error {
	m.errorCount.Add(1)
	msg := err.Error()
	m.lastError.Store(&msg)
	return err
}

// Register builds, initializes, and registers one permissions module per
// namespace tag, all sharing one granter.
func Register(table *module.NamespaceTable, cfg Config, deps module.Dependencies,
	granter Granter, namespaces ...string) ([]*Module, error) {
	mods := make([]*Module, 0, len(namespaces))
	for _, tag := range namespaces {
		m, err := New(tag, cfg, deps, granter)
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
