package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/pkg/cache"
	"github.com/c360/bridgekit/pkg/retry"
	"github.com/c360/bridgekit/value"
)

// ModuleName is the logical name the module registers under.
const ModuleName = "Settings"

// EventChanged is the change event stream: one {key, value} payload per
// applied write, value null for removals.
const EventChanged = "watchChanges"

// bucketPrefix prefixes the per-namespace JetStream KV bucket name.
const bucketPrefix = "bridgekit_settings_"

// Module is the settings capability module for one version namespace.
type Module struct {
	cfg       Config
	namespace module.Namespace
	deps      module.Dependencies
	logger    *slog.Logger
	metrics   *settingsMetrics

	// readCache fronts the KV bucket in hybrid mode; a noop cache in plain
	// kv mode keeps the store code uniform.
	readCache cache.Cache[value.Value]

	mu          sync.RWMutex
	store       store
	lifecycleMu sync.Mutex
	running     bool
	startTime   time.Time

	errorCount atomic.Int64
	lastError  atomic.Pointer[string]
}

// New creates a settings module bound to a version namespace. KV-backed
// modes require a NATS client in deps.
func New(namespace string, cfg Config, deps module.Dependencies) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ns := module.Namespace(namespace)
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode != ModeMemory && deps.NATSClient == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Settings", "New",
			"mode "+string(cfg.Mode)+" requires a NATS client")
	}

	metrics, err := newSettingsMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("settings metrics registration failed", "error", err)
		metrics = nil
	}

	return &Module{
		cfg:       cfg,
		namespace: ns,
		deps:      deps,
		logger:    deps.GetLoggerWithModule(ModuleName).With("namespace", namespace),
		metrics:   metrics,
	}, nil
}

// Meta returns basic module information.
func (m *Module) Meta() module.Metadata {
	return module.Metadata{
		Name:        ModuleName,
		Type:        "storage",
		Description: "Versioned persistent key/value settings store",
		Version:     "1.0.0",
	}
}

// Methods returns the declared capability set.
func (m *Module) Methods() []module.Method {
	return []module.Method{
		{
			Name:        "get",
			Description: "Return the value stored under a key, or null when absent",
			Signature: value.Signature{
				Params: []value.Param{value.P("key", value.TypeString)},
				Result: value.TypeAny,
			},
			Func: m.handleGet,
		},
		{
			Name:        "getAll",
			Description: "Return a snapshot of every stored setting",
			Signature:   value.Signature{Result: value.TypeMap},
			Func:        m.handleGetAll,
		},
		{
			Name:        "set",
			Description: "Store one value under a key",
			Signature: value.Signature{
				Params: []value.Param{value.P("key", value.TypeString), value.P("value", value.TypeAny)},
				Result: value.TypeNull,
			},
			Func: m.handleSet,
		},
		{
			Name:        "setBatch",
			Description: "Store several values; every entry is validated before any is written",
			Signature: value.Signature{
				Params: []value.Param{value.P("values", value.TypeMap)},
				Result: value.TypeNull,
			},
			Func: m.handleSetBatch,
		},
		{
			Name:        "remove",
			Description: "Delete the value stored under a key; absent keys are a no-op",
			Signature: value.Signature{
				Params: []value.Param{value.P("key", value.TypeString)},
				Result: value.TypeNull,
			},
			Func: m.handleRemove,
		},
	}
}

// Events returns the event streams the module emits.
func (m *Module) Events() []module.EventDef {
	return []module.EventDef{
		{
			Name:        EventChanged,
			Description: "Emitted once per applied write with a {key, value} payload",
			Payload:     value.TypeMap,
		},
	}
}

// ConfigSchema returns the configuration schema for this module.
func (m *Module) ConfigSchema() module.ConfigSchema {
	minEntries := 1
	minBytes := 1
	return module.ConfigSchema{
		Properties: map[string]module.PropertySchema{
			"mode": {
				Type:        "enum",
				Description: "Backing store: memory, kv, or hybrid",
				Default:     string(ModeMemory),
				Enum:        []string{string(ModeMemory), string(ModeKV), string(ModeHybrid)},
			},
			"cache_size": {
				Type:        "int",
				Description: "LRU read cache capacity in hybrid mode",
				Default:     DefaultConfig().CacheSize,
				Minimum:     &minEntries,
			},
			"max_value_size": {
				Type:        "int",
				Description: "Maximum serialized value size in bytes",
				Default:     DefaultConfig().MaxValueSize,
				Minimum:     &minBytes,
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
		return nil, errors.Newf(errors.KindInvalidTarget, "Settings", "Descriptor",
			"module is bound to namespace %q, not %q", m.namespace, namespace)
	}
	return module.NewDescriptor(m.namespace, m)
}

// Initialize prepares the backing store. KV-backed modes defer bucket
// creation to Start because bucket provisioning needs a context.
func (m *Module) Initialize() error {
	switch m.cfg.Mode {
	case ModeMemory:
		m.setStore(newMemoryStore(m.emitChange))
		return nil
	case ModeHybrid:
		readCache, err := cache.NewLRU[value.Value](m.cfg.CacheSize)
		if err != nil {
			return errors.Wrap(err, "Settings", "Initialize", "create read cache")
		}
		m.readCache = readCache
		return nil
	default:
		m.readCache = cache.NewNoop[value.Value]()
		return nil
	}
}

// Start provisions the KV bucket (kv and hybrid modes) and begins watching
// it for changes.
func (m *Module) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Settings", "Start", "check running state")
	}

	if m.cfg.Mode != ModeMemory {
		kvs, err := m.openBucket(ctx)
		if err != nil {
			return err
		}
		st := newKVStore(kvs, m.readCache, m.retryConfig(), m.emitChange, m.logger)
		if err := st.start(ctx); err != nil {
			return err
		}
		m.setStore(st)
	}

	m.running = true
	m.startTime = time.Now()
	m.logger.Info("settings module started", "mode", m.cfg.Mode, "bucket", m.bucketName())
	return nil
}

// Stop closes the backing store.
func (m *Module) Stop(timeout time.Duration) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	st := m.activeStore()
	if st == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- st.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "Settings", "Stop", "close store")
		}
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrTimeout, "Settings", "Stop", "close store")
	}
}

// openBucket creates or binds the per-namespace KV bucket.
func (m *Module) openBucket(ctx context.Context) (*natsclient.KVStore, error) {
	bucketName := m.bucketName()

	bucket, err := m.deps.NATSClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "bridgekit settings for namespace " + string(m.namespace),
	})
	if err != nil {
		bucket, err = m.deps.NATSClient.GetKeyValueBucket(ctx, bucketName)
		if err != nil {
			return nil, errors.WrapTransient(err, "Settings", "Start", "open bucket "+bucketName)
		}
	}

	return m.deps.NATSClient.NewKVStore(bucket, func(o *natsclient.KVOptions) {
		o.Timeout = m.cfg.KVTimeout
		o.MaxValueSize = m.cfg.MaxValueSize
		o.MaxRetries = m.cfg.RetryAttempts
		o.RetryDelay = m.cfg.RetryDelay
	}), nil
}

// bucketName derives the JetStream bucket name from the namespace tag.
// Namespace tags may contain dots, which bucket names cannot.
func (m *Module) bucketName() string {
	return bucketPrefix + strings.ReplaceAll(string(m.namespace), ".", "_")
}

func (m *Module) retryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  m.cfg.RetryAttempts + 1,
		InitialDelay: m.cfg.RetryDelay,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

func (m *Module) setStore(st store) {
	m.mu.Lock()
	m.store = st
	m.mu.Unlock()
}

func (m *Module) activeStore() store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

// readyStore returns the store once the module is started.
func (m *Module) readyStore() (store, error) {
	st := m.activeStore()
	if st == nil {
		return nil, errors.WrapTransient(errors.ErrNotStarted, "Settings", "call", "store not ready")
	}
	return st, nil
}

// emitChange publishes one applied write on the watchChanges stream.
func (m *Module) emitChange(key string, val value.Value) {
	m.metrics.recordChange(string(m.namespace))
	m.deps.Emit(EventChanged, value.NewMap(map[string]value.Value{
		"key":   value.NewString(key),
		"value": val,
	}))
}

func (m *Module) handleGet(ctx context.Context, args []value.Value) (value.Value, error) {
	key, err := args[0].StringVal()
	if err != nil {
		return value.Null(), err
	}
	st, err := m.readyStore()
	if err != nil {
		return value.Null(), err
	}

	start := time.Now()
	val, ok, err := st.Get(ctx, key)
	m.metrics.recordOp(string(m.namespace), "get", err, time.Since(start))
	if err != nil {
		return value.Null(), m.fail(err)
	}
	if !ok {
		return value.Null(), nil
	}
	return val, nil
}

func (m *Module) handleGetAll(ctx context.Context, _ []value.Value) (value.Value, error) {
	st, err := m.readyStore()
	if err != nil {
		return value.Null(), err
	}

	start := time.Now()
	snapshot, err := st.GetAll(ctx)
	m.metrics.recordOp(string(m.namespace), "getAll", err, time.Since(start))
	if err != nil {
		return value.Null(), m.fail(err)
	}
	return value.NewMap(snapshot), nil
}

func (m *Module) handleSet(ctx context.Context, args []value.Value) (value.Value, error) {
	key, err := args[0].StringVal()
	if err != nil {
		return value.Null(), err
	}
	if err := m.validateEntry(key, args[1]); err != nil {
		return value.Null(), err
	}
	st, err := m.readyStore()
	if err != nil {
		return value.Null(), err
	}

	start := time.Now()
	err = st.Set(ctx, key, args[1])
	m.metrics.recordOp(string(m.namespace), "set", err, time.Since(start))
	if err != nil {
		return value.Null(), m.fail(err)
	}
	return value.Null(), nil
}

func (m *Module) handleSetBatch(ctx context.Context, args []value.Value) (value.Value, error) {
	entries, err := args[0].MapVal()
	if err != nil {
		return value.Null(), err
	}

	// All-or-nothing: every entry must validate before anything is written.
	for key, val := range entries {
		if err := m.validateEntry(key, val); err != nil {
			return value.Null(), err
		}
	}
	if len(entries) == 0 {
		return value.Null(), nil
	}

	st, err := m.readyStore()
	if err != nil {
		return value.Null(), err
	}

	start := time.Now()
	err = st.SetBatch(ctx, entries)
	m.metrics.recordOp(string(m.namespace), "setBatch", err, time.Since(start))
	if err != nil {
		return value.Null(), m.fail(err)
	}
	return value.Null(), nil
}

func (m *Module) handleRemove(ctx context.Context, args []value.Value) (value.Value, error) {
	key, err := args[0].StringVal()
	if err != nil {
		return value.Null(), err
	}
	if key == "" {
		return value.Null(), errors.New(errors.KindTypeMismatch, "Settings", "remove",
			"key must not be empty")
	}
	st, err := m.readyStore()
	if err != nil {
		return value.Null(), err
	}

	start := time.Now()
	err = st.Remove(ctx, key)
	m.metrics.recordOp(string(m.namespace), "remove", err, time.Since(start))
	if err != nil {
		return value.Null(), m.fail(err)
	}
	return value.Null(), nil
}

// validateEntry checks one key/value pair before any write is attempted.
func (m *Module) validateEntry(key string, val value.Value) error {
	if key == "" {
		return errors.New(errors.KindTypeMismatch, "Settings", "set", "key must not be empty")
	}
	data, err := json.Marshal(val)
	if err != nil {
		return errors.WrapKind(errors.KindTypeMismatch, err, "Settings", "set", "encode "+key)
	}
	if len(data) > m.cfg.MaxValueSize {
		return errors.Newf(errors.KindTypeMismatch, "Settings", "set",
			"value for %q is %d bytes, limit is %d", key, len(data), m.cfg.MaxValueSize)
	}
	return nil
}

// fail records a store failure for health reporting and passes it through.
func (m *Module) fail(err error) error {
	m.errorCount.Add(1)
	msg := err.Error()
	m.lastError.Store(&msg)
	return err
}

// Register builds, initializes, and registers one settings module per
// namespace tag. Returned modules still need Start once registration is
// frozen.
func Register(table *module.NamespaceTable, cfg Config, deps module.Dependencies,
	namespaces ...string) ([]*Module, error) {
	mods := make([]*Module, 0, len(namespaces))
	for _, tag := range namespaces {
		m, err := New(tag, cfg, deps)
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
