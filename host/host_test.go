package host

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/bridge"
	"github.com/c360/bridgekit/config"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/value"
)

// trackerModule is a custom capability module adopted through WithModules so
// tests can watch the host drive its lifecycle.
type trackerModule struct {
	name string // Meta name, "Tracker" when empty

	mu          sync.Mutex
	initialized bool
	started     bool
	stopped     bool
	startErr    error
}

func (m *trackerModule) Meta() module.Metadata {
	name := m.name
	if name == "" {
		name = "Tracker"
	}
	return module.Metadata{Name: name, Type: "system", Description: "host test stub", Version: "1.0.0"}
}

func (m *trackerModule) Methods() []module.Method {
	return []module.Method{
		{
			Name:        "echo",
			Description: "Return the argument unchanged",
			Signature: value.Signature{
				Params: []value.Param{value.P("input", value.TypeAny)},
				Result: value.TypeAny,
			},
			Func: func(_ context.Context, args []value.Value) (value.Value, error) {
				return args[0], nil
			},
		},
	}
}

func (m *trackerModule) Events() []module.EventDef         { return nil }
func (m *trackerModule) ConfigSchema() module.ConfigSchema { return module.ConfigSchema{} }

func (m *trackerModule) Health() module.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return module.HealthStatus{Healthy: m.started && !m.stopped, LastCheck: time.Now()}
}

func (m *trackerModule) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

func (m *trackerModule) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *trackerModule) Stop(time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *trackerModule) snapshot() (initialized, started, stopped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized, m.started, m.stopped
}

// registerTracker returns a hook that registers m in v1 and hands it to the
// host for adoption.
func registerTracker(m *trackerModule) RegisterHook {
	return func(table *module.NamespaceTable) ([]module.LifecycleModule, error) {
		desc, err := module.NewDescriptor("v1", m)
		if err != nil {
			return nil, err
		}
		reg, err := table.NamespaceFor("v1")
		if err != nil {
			return nil, err
		}
		if err := reg.Register(desc); err != nil {
			return nil, err
		}
		return []module.LifecycleModule{m}, nil
	}
}

// newTestHost starts a full host with NATS and metrics disabled and the
// gateway on an ephemeral port.
func newTestHost(t *testing.T, mutate func(*config.Config), opts ...Option) *Host {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Gateway.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	h, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(5 * time.Second) })
	return h
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidTarget, errors.KindOf(err))

	cfg := config.DefaultConfig()
	cfg.Namespaces = []string{"v1", "v1"}
	_, err = New(cfg)
	require.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestHost_Lifecycle(t *testing.T) {
	tracker := &trackerModule{}
	h := newTestHost(t, nil, WithModules(registerTracker(tracker)))

	require.NotNil(t, h.Dispatcher())
	require.NotNil(t, h.Scripts())
	require.NotNil(t, h.Gateway())
	require.NotNil(t, h.Table())
	require.NotNil(t, h.Hub())
	require.NotNil(t, h.MetricsRegistry())
	assert.Nil(t, h.NATSClient(), "nats is disabled by default")
	assert.Nil(t, h.ConfigManager(), "config manager runs only with nats")
	assert.True(t, strings.HasPrefix(h.Gateway().Address(), "ws://"))

	initialized, started, stopped := tracker.snapshot()
	assert.True(t, initialized, "hook modules are initialized before the freeze")
	assert.True(t, started)
	assert.False(t, stopped)

	require.NoError(t, h.Stop(5*time.Second))
	_, _, stopped = tracker.snapshot()
	assert.True(t, stopped)

	require.NoError(t, h.Stop(5*time.Second), "second stop is a no-op")

	err := h.Start(context.Background())
	require.ErrorIs(t, err, errors.ErrShuttingDown, "a stopped host does not restart")
}

func TestHost_StartTwice(t *testing.T) {
	h := newTestHost(t, nil)

	err := h.Start(context.Background())
	require.ErrorIs(t, err, errors.ErrAlreadyStarted)
}

func TestHost_ModuleStates(t *testing.T) {
	tracker := &trackerModule{}
	h := newTestHost(t, func(c *config.Config) {
		c.Namespaces = []string{"v1", "v2"}
	}, WithModules(registerTracker(tracker)))

	states := h.ModuleStates()
	for _, name := range []string{
		"v1.Settings", "v1.Orientation", "v1.Permissions", "v1.Geolocation",
		"v2.Settings", "v2.Orientation", "v2.Permissions", "v2.Geolocation",
		"Tracker",
	} {
		assert.Equal(t, module.StateStarted, states[name], name)
	}

	require.NoError(t, h.Stop(5*time.Second))
	for name, state := range h.ModuleStates() {
		assert.Equal(t, module.StateStopped, state, name)
	}
}

func TestHost_FactoryModules(t *testing.T) {
	set := module.NewFactorySet()
	var built *trackerModule
	require.NoError(t, set.RegisterFactory("AudioSession",
		func(_ json.RawMessage, _ module.Dependencies) (module.Module, error) {
			built = &trackerModule{name: "AudioSession"}
			return built, nil
		}))

	h := newTestHost(t, func(c *config.Config) {
		c.Modules.Custom = map[string]json.RawMessage{
			"AudioSession": json.RawMessage(`{}`),
		}
	}, WithFactories(set))

	desc, err := h.Table().Resolve("v1", "AudioSession")
	require.NoError(t, err)
	assert.Equal(t, "AudioSession", desc.Name())

	assert.Equal(t, module.StateStarted, h.ModuleStates()["v1.AudioSession"])
	initialized, started, _ := built.snapshot()
	assert.True(t, initialized)
	assert.True(t, started)
}

func TestHost_FactoryModulesWithoutSet(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.Port = 0
	cfg.Modules.Custom = map[string]json.RawMessage{"AudioSession": json.RawMessage(`{}`)}
	h, err := New(cfg)
	require.NoError(t, err)

	err = h.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestHost_InvokeThroughDispatcher(t *testing.T) {
	tracker := &trackerModule{}
	h := newTestHost(t, nil, WithModules(registerTracker(tracker)))

	p, err := h.Dispatcher().Invoke(bridge.Invocation{
		CallerID:  "host-test",
		Namespace: "v1",
		Module:    "Tracker",
		Method:    "echo",
		Args:      []value.Value{value.NewString("ping")},
	})
	require.NoError(t, err)

	select {
	case c := <-p.Done():
		require.False(t, c.IsError(), "unexpected error: %+v", c.Err)
		got, err := c.Result.StringVal()
		require.NoError(t, err)
		assert.Equal(t, "ping", got)
	case <-time.After(3 * time.Second):
		t.Fatal("invocation did not complete")
	}
}

func TestHost_Health(t *testing.T) {
	h := newTestHost(t, nil)

	status := h.Health()
	require.True(t, status.IsHealthy(), "status: %+v", status)
	assert.Equal(t, "host", status.Component)

	components := make(map[string]bool, len(status.SubStatuses))
	for _, sub := range status.SubStatuses {
		components[sub.Component] = sub.Healthy
	}
	for _, name := range []string{"dispatcher", "scripts", "gateway", "v1.Settings", "v1.Geolocation"} {
		assert.True(t, components[name], name)
	}
}

func TestHost_HookErrorAbortsStart(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.Port = 0
	h, err := New(cfg, WithModules(func(*module.NamespaceTable) ([]module.LifecycleModule, error) {
		return nil, stderrors.New("refused")
	}))
	require.NoError(t, err)

	err = h.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err), "got: %v", err)
	assert.Contains(t, err.Error(), "custom module registration")

	err = h.Start(context.Background())
	require.ErrorIs(t, err, errors.ErrShuttingDown, "a rolled-back host does not restart")
}

func TestHost_ModuleStartFailureRollsBack(t *testing.T) {
	tracker := &trackerModule{startErr: stderrors.New("sensor offline")}
	cfg := config.DefaultConfig()
	cfg.Gateway.Port = 0
	h, err := New(cfg, WithModules(registerTracker(tracker)))
	require.NoError(t, err)

	err = h.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start module Tracker")

	states := h.ModuleStates()
	assert.Equal(t, module.StateFailed, states["Tracker"])
	assert.Equal(t, module.StateStopped, states["v1.Settings"],
		"built-ins that did start are stopped by the rollback")

	_, _, stopped := tracker.snapshot()
	assert.False(t, stopped, "a module that never started is not stopped")
}

func TestHost_Run(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.Port = 0
	h, err := New(cfg, WithShutdownTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop(2 * time.Second) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.started
	}, 5*time.Second, 10*time.Millisecond, "host did not come up")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}

	for name, state := range h.ModuleStates() {
		assert.Equal(t, module.StateStopped, state, name)
	}
}
