// Package host assembles a complete bridgekit host from one configuration
// document: the namespace table, built-in modules, bridge dispatcher, script
// context manager, WebSocket gateway, and the optional NATS and metrics
// plumbing around them.
//
// Hosts are built with New, started with Start, and torn down with Stop.
// Run wraps the three into a signal-driven lifetime for binaries; embedders
// call Start and Stop themselves and reach the live components through the
// accessors.
package host

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/bridgekit/bridge"
	"github.com/c360/bridgekit/config"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/gateway"
	"github.com/c360/bridgekit/health"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/modules/geolocation"
	"github.com/c360/bridgekit/modules/permissions"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/script"
)

// DefaultShutdownTimeout bounds Stop when Run tears the host down after a
// signal.
const DefaultShutdownTimeout = 15 * time.Second

// RegisterHook runs after the built-in modules register and before the
// namespace table freezes. Hosts embedding custom native modules register
// them here, following the same Register shape the built-ins use. Returned
// lifecycle modules are adopted: the host initializes and starts them with
// the built-ins and stops them in reverse order. A non-nil error aborts
// startup.
type RegisterHook func(table *module.NamespaceTable) ([]module.LifecycleModule, error)

// hostModule is one started module instance and the namespace it serves.
// The namespace is tracked host-side because a module carries no memory of
// where it was registered; hook-adopted modules have none.
type hostModule struct {
	namespace string
	managed   *module.Managed
	lifecycle module.LifecycleModule
}

func (m *hostModule) name() string {
	if m.namespace == "" {
		return m.lifecycle.Meta().Name
	}
	return m.namespace + "." + m.lifecycle.Meta().Name
}

// Host owns every component of a running bridgekit instance and sequences
// their lifecycles.
type Host struct {
	cfg        *config.Config
	logger     *slog.Logger
	baseLogger *slog.Logger // pre-With logger handed to components

	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	table    *module.NamespaceTable
	hub      *bridge.EventHub
	monitor  *health.Monitor

	granter         permissions.Granter
	source          geolocation.Source
	factories       *module.FactorySet
	hooks           []RegisterHook
	shutdownTimeout time.Duration

	lifecycleMu sync.Mutex // serializes Start and Stop
	mu          sync.Mutex // protects the fields below
	started     bool
	stopped     bool

	// Built during Start, torn down in reverse during Stop. Any of these may
	// be nil when the corresponding feature is disabled.
	natsClient *natsclient.Client
	configMgr  *config.Manager
	inspector  *bridge.Inspector
	dispatcher *bridge.Dispatcher
	modules    []*hostModule
	scripts    *script.Manager
	gw         *gateway.Gateway
	metricsSrv *metric.Server
}

// Option customizes a Host at construction time.
type Option func(*Host)

// WithLogger sets the base logger. Components derive their own loggers from
// it, so one handler configuration covers the whole host.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithGranter binds the platform permission granter the permissions modules
// ask through. Without one, ask calls fail with the module's no-granter
// error.
func WithGranter(g permissions.Granter) Option {
	return func(h *Host) {
		h.granter = g
	}
}

// WithSource binds the position source the geolocation modules read from.
// Without one, each namespace gets a simulated source.
func WithSource(s geolocation.Source) Option {
	return func(h *Host) {
		h.source = s
	}
}

// WithModules adds a registration hook for custom native modules. Hooks run
// in order after the built-ins register, against the still-mutable table.
func WithModules(hook RegisterHook) Option {
	return func(h *Host) {
		if hook != nil {
			h.hooks = append(h.hooks, hook)
		}
	}
}

// WithFactories binds the factory set that builds the modules named in the
// configuration's modules.custom section. Hooks suit modules the embedder
// constructs itself; factories suit modules whose configuration lives in the
// host's config document.
func WithFactories(set *module.FactorySet) Option {
	return func(h *Host) {
		h.factories = set
	}
}

// WithShutdownTimeout overrides the shutdown budget Run hands to Stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.shutdownTimeout = d
		}
	}
}

// New validates the configuration and builds an unstarted host. The
// namespace table, event hub, and metrics registry exist after New; the
// transport and module components are created by Start.
func New(cfg *config.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindInvalidTarget, "Host", "New", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Host", "New", "config validation")
	}

	table, err := module.NewNamespaceTable(cfg.Namespaces...)
	if err != nil {
		return nil, errors.Wrap(err, "Host", "New", "build namespace table")
	}

	registry := metric.NewMetricsRegistry()

	h := &Host{
		cfg:             cfg,
		logger:          slog.Default(),
		registry:        registry,
		metrics:         registry.CoreMetrics(),
		table:           table,
		monitor:         health.NewMonitor(),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}

	// Components apply their own With("component", ...) tags, so they get
	// the logger as provided while the host's own lines carry its tag.
	h.baseLogger = h.logger
	h.hub = bridge.NewEventHub(h.baseLogger, h.metrics)
	h.logger = h.baseLogger.With("component", "Host")
	return h, nil
}

// Config returns the host configuration.
func (h *Host) Config() *config.Config {
	return h.cfg
}

// Table returns the namespace table. It is frozen once Start returns.
func (h *Host) Table() *module.NamespaceTable {
	return h.table
}

// Hub returns the event hub shared by modules and callers.
func (h *Host) Hub() *bridge.EventHub {
	return h.hub
}

// Dispatcher returns the bridge dispatcher, nil before Start.
func (h *Host) Dispatcher() *bridge.Dispatcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dispatcher
}

// Scripts returns the script context manager, nil before Start.
func (h *Host) Scripts() *script.Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scripts
}

// Gateway returns the WebSocket gateway, nil before Start.
func (h *Host) Gateway() *gateway.Gateway {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gw
}

// NATSClient returns the shared NATS client, nil when nats is disabled.
func (h *Host) NATSClient() *natsclient.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.natsClient
}

// ConfigManager returns the runtime configuration manager, nil when nats is
// disabled.
func (h *Host) ConfigManager() *config.Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.configMgr
}

// MetricsRegistry returns the host's Prometheus registry.
func (h *Host) MetricsRegistry() *metric.MetricsRegistry {
	return h.registry
}

// ModuleStates reports every registered module's lifecycle state keyed by
// "namespace.module".
func (h *Host) ModuleStates() map[string]module.State {
	h.mu.Lock()
	defer h.mu.Unlock()

	states := make(map[string]module.State, len(h.modules))
	for _, hm := range h.modules {
		states[hm.name()] = hm.managed.State
	}
	return states
}
