package orientation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/value"
)

// ModuleName is the logical name the module registers under.
const ModuleName = "Orientation"

// EventOrientationChanged carries one {orientation} payload per applied
// interface orientation change.
const EventOrientationChanged = "orientationDidChange"

// Module is the orientation capability module for one version namespace.
type Module struct {
	cfg       Config
	namespace module.Namespace
	deps      module.Dependencies
	logger    *slog.Logger
	device    Device
	table     lockTable

	lifecycleMu sync.Mutex
	running     bool
	startTime   time.Time

	errorCount atomic.Int64
	lastError  atomic.Pointer[string]
}

// New creates an orientation module bound to a version namespace. A nil
// device gets a simulated one seeded from the config; a host-supplied device
// must speak the configured platform's vocabulary.
func New(namespace string, cfg Config, deps module.Dependencies, device Device) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ns := module.Namespace(namespace)
	if err := ns.Validate(); err != nil {
		return nil, err
	}

	if device == nil {
		sim, err := NewSimulatedDevice(cfg.Platform, cfg.InitialOrientation)
		if err != nil {
			return nil, err
		}
		device = sim
	} else if device.Platform() != cfg.Platform {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Orientation", "New",
			"device speaks "+string(device.Platform())+", config expects "+string(cfg.Platform))
	}

	table, err := tableFor(cfg.Platform)
	if err != nil {
		return nil, err
	}

	return &Module{
		cfg:       cfg,
		namespace: ns,
		deps:      deps,
		logger:    deps.GetLoggerWithModule(ModuleName).With("namespace", namespace),
		device:    device,
		table:     table,
	}, nil
}

// Meta returns basic module information.
func (m *Module) Meta() module.Metadata {
	return module.Metadata{
		Name:        ModuleName,
		Type:        "device",
		Description: "Screen orientation state, locks, and platform constant translation",
		Version:     "1.0.0",
	}
}

// Methods returns the declared capability set.
func (m *Module) Methods() []module.Method {
	return []module.Method{
		{
			Name:        "lock",
			Description: "Apply a named orientation lock",
			Signature: value.Signature{
				Params: []value.Param{value.P("lock", value.TypeString)},
				Result: value.TypeNull,
			},
			Func: m.handleLock,
		},
		{
			Name:        "unlock",
			Description: "Remove any applied orientation lock",
			Signature:   value.Signature{Result: value.TypeNull},
			Func:        m.handleUnlock,
		},
		{
			Name:        "getOrientation",
			Description: "Return the current interface orientation",
			Signature:   value.Signature{Result: value.TypeString},
			Func:        m.handleGetOrientation,
		},
		{
			Name:        "getPlatformLock",
			Description: "Translate the current lock into a platform's numeric constant",
			Signature: value.Signature{
				Params: []value.Param{value.P("platform", value.TypeString)},
				Result: value.TypeNumber,
			},
			Func: m.handleGetPlatformLock,
		},
	}
}

// Events returns the event streams the module emits.
func (m *Module) Events() []module.EventDef {
	return []module.EventDef{
		{
			Name:        EventOrientationChanged,
			Description: "Emitted once per applied interface orientation change",
			Payload:     value.TypeMap,
		},
	}
}

// ConfigSchema returns the configuration schema for this module.
func (m *Module) ConfigSchema() module.ConfigSchema {
	return module.ConfigSchema{
		Properties: map[string]module.PropertySchema{
			"platform": {
				Type:        "enum",
				Description: "Constant vocabulary the module translates between",
				Default:     string(PlatformIOS),
				Enum:        []string{string(PlatformIOS), string(PlatformAndroid)},
			},
			"initial_orientation": {
				Type:        "enum",
				Description: "Orientation the simulated device starts in",
				Default:     OrientationPortrait,
				Enum: []string{
					OrientationPortrait, OrientationPortraitUpsideDown,
					OrientationLandscapeLeft, OrientationLandscapeRight,
				},
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
		return nil, errors.Newf(errors.KindInvalidTarget, "Orientation", "Descriptor",
			"module is bound to namespace %q, not %q", m.namespace, namespace)
	}
	return module.NewDescriptor(m.namespace, m)
}

// Initialize binds the device change callback so rotations reach the event
// stream.
func (m *Module) Initialize() error {
	m.device.OnChange(m.emitOrientationChange)
	return nil
}

// Start marks the module running.
func (m *Module) Start(_ context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Orientation", "Start", "check running state")
	}
	m.running = true
	m.startTime = time.Now()
	m.logger.Info("orientation module started",
		"platform", m.cfg.Platform, "orientation", m.device.Orientation())
	return nil
}

// Stop unbinds the device callback and marks the module stopped.
func (m *Module) Stop(_ time.Duration) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	m.device.OnChange(nil)
	return nil
}

// emitOrientationChange publishes one change on the orientationDidChange
// stream.
func (m *Module) emitOrientationChange(orientation string) {
	m.deps.Emit(EventOrientationChanged, value.NewMap(map[string]value.Value{
		"orientation": value.NewString(orientation),
	}))
}

func (m *Module) handleLock(_ context.Context, args []value.Value) (value.Value, error) {
	symbolic, err := args[0].StringVal()
	if err != nil {
		return value.Null(), err
	}
	if _, err := m.table.Numeric(symbolic); err != nil {
		return value.Null(), err
	}
	if err := m.device.ApplyLock(symbolic); err != nil {
		return value.Null(), m.fail(err)
	}
	m.logger.Debug("orientation locked", "lock", symbolic)
	return value.Null(), nil
}

func (m *Module) handleUnlock(_ context.Context, _ []value.Value) (value.Value, error) {
	if err := m.device.ClearLock(); err != nil {
		return value.Null(), m.fail(err)
	}
	m.logger.Debug("orientation unlocked")
	return value.Null(), nil
}

func (m *Module) handleGetOrientation(_ context.Context, _ []value.Value) (value.Value, error) {
	return value.NewString(m.device.Orientation()), nil
}

// handleGetPlatformLock reports the current lock as the requested platform's
// numeric constant. Unlocked maps to the platform's unrestricted constant;
// a lock with no name in the requested vocabulary is a type mismatch.
func (m *Module) handleGetPlatformLock(_ context.Context, args []value.Value) (value.Value, error) {
	raw, err := args[0].StringVal()
	if err != nil {
		return value.Null(), err
	}
	platform := Platform(raw)
	table, err := tableFor(platform)
	if err != nil {
		return value.Null(), err
	}

	symbolic, locked := m.device.CurrentLock()
	if !locked {
		n, err := unlockedNumeric(platform)
		if err != nil {
			return value.Null(), err
		}
		return value.NewNumber(float64(n)), nil
	}

	n, err := table.Numeric(symbolic)
	if err != nil {
		return value.Null(), err
	}
	return value.NewNumber(float64(n)), nil
}

// fail records a device failure for health reporting and passes it through.
func (m *Module) fail(err error) error {
	m.errorCount.Add(1)
	msg := err.Error()
	m.lastError.Store(&msg)
	return err
}

// Register builds, initializes, and registers one orientation module per
// namespace tag, each with its own simulated device. Hosts binding real
// devices construct modules with New instead.
func Register(table *module.NamespaceTable, cfg Config, deps module.Dependencies,
	namespaces ...string) ([]*Module, error) {
	mods := make([]*Module, 0, len(namespaces))
	for _, tag := range namespaces {
		m, err := New(tag, cfg, deps, nil)
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
