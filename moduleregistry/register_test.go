package moduleregistry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/modules/geolocation"
	"github.com/c360/bridgekit/modules/orientation"
	"github.com/c360/bridgekit/modules/permissions"
	"github.com/c360/bridgekit/modules/settings"
	"github.com/c360/bridgekit/value"
)

type recordingEmitter struct {
	namespace  string
	moduleName string
}

func (e *recordingEmitter) Emit(string, value.Value) {}

func TestRegisterAll_EveryModuleInEveryNamespace(t *testing.T) {
	table, err := module.NewNamespaceTable("v1", "v2")
	require.NoError(t, err)
	mods, err := RegisterAll(table, DefaultConfig(), module.Dependencies{}, Boundaries{}, nil, "v1", "v2")
	require.NoError(t, err)

	// Four built-ins in each of two namespaces.
	assert.Len(t, mods, 8)

	for _, namespace := range []string{"v1", "v2"} {
		for _, name := range []string{
			settings.ModuleName, orientation.ModuleName,
			permissions.ModuleName, geolocation.ModuleName,
		} {
			desc, err := table.Resolve(namespace, name)
			require.NoError(t, err, "%s in %s", name, namespace)
			assert.Equal(t, name, desc.Name())
		}
	}
}

func TestRegisterAll_DisabledSectionSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geolocation = nil
	cfg.Permissions = nil

	table, err := module.NewNamespaceTable("v1")
	require.NoError(t, err)
	mods, err := RegisterAll(table, cfg, module.Dependencies{}, Boundaries{}, nil, "v1")
	require.NoError(t, err)
	assert.Len(t, mods, 2)

	_, err = table.Resolve("v1", geolocation.ModuleName)
	require.Error(t, err)
	assert.True(t, errors.IsModuleNotFound(err))
}

func TestRegisterAll_NilTableIsFatal(t *testing.T) {
	_, err := RegisterAll(nil, DefaultConfig(), module.Dependencies{}, Boundaries{}, nil, "v1")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestRegisterAll_InvalidSectionRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.MaxValueSize = -1

	table, err := module.NewNamespaceTable("v1")
	require.NoError(t, err)
	_, err = RegisterAll(table, cfg, module.Dependencies{}, Boundaries{}, nil, "v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestRegisterAll_SecondRunIsDuplicate(t *testing.T) {
	table, err := module.NewNamespaceTable("v1")
	require.NoError(t, err)
	_, err = RegisterAll(table, DefaultConfig(), module.Dependencies{}, Boundaries{}, nil, "v1")
	require.NoError(t, err)

	_, err = RegisterAll(table, DefaultConfig(), module.Dependencies{}, Boundaries{}, nil, "v1")
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateModule(err))
}

func TestRegisterAll_EmitterFactoryScopesPairs(t *testing.T) {
	var pairs [][2]string
	factory := func(namespace, moduleName string) module.Emitter {
		pairs = append(pairs, [2]string{namespace, moduleName})
		return &recordingEmitter{namespace: namespace, moduleName: moduleName}
	}

	table, err := module.NewNamespaceTable("v1", "v2")
	require.NoError(t, err)
	_, err = RegisterAll(table, DefaultConfig(), module.Dependencies{}, Boundaries{}, factory, "v1", "v2")
	require.NoError(t, err)

	assert.Len(t, pairs, 8)
	assert.Contains(t, pairs, [2]string{"v1", settings.ModuleName})
	assert.Contains(t, pairs, [2]string{"v2", geolocation.ModuleName})
}

// clipboardModule is a minimal custom capability built through the factory
// path in tests.
type clipboardModule struct {
	name        string
	initialized bool
}

func (m *clipboardModule) Meta() module.Metadata {
	return module.Metadata{Name: m.name, Type: "system", Description: "test clipboard", Version: "1.0.0"}
}

func (m *clipboardModule) Methods() []module.Method {
	return []module.Method{
		{
			Name:      "read",
			Signature: value.Signature{Result: value.TypeString},
			Func: func(context.Context, []value.Value) (value.Value, error) {
				return value.NewString(""), nil
			},
		},
	}
}

func (m *clipboardModule) Events() []module.EventDef         { return nil }
func (m *clipboardModule) ConfigSchema() module.ConfigSchema { return module.ConfigSchema{} }
func (m *clipboardModule) Health() module.HealthStatus       { return module.HealthStatus{Healthy: true} }

func (m *clipboardModule) Initialize() error           { m.initialized = true; return nil }
func (m *clipboardModule) Start(context.Context) error { return nil }
func (m *clipboardModule) Stop(time.Duration) error    { return nil }

func clipboardFactory(_ json.RawMessage, _ module.Dependencies) (module.Module, error) {
	return &clipboardModule{name: "Clipboard"}, nil
}

func TestRegisterAll_CustomFactoryModules(t *testing.T) {
	set := module.NewFactorySet()
	require.NoError(t, set.RegisterFactory("Clipboard", clipboardFactory))

	cfg := Config{Custom: map[string]json.RawMessage{"Clipboard": json.RawMessage(`{}`)}}
	table, err := module.NewNamespaceTable("v1", "v2")
	require.NoError(t, err)

	mods, err := RegisterAll(table, cfg, module.Dependencies{}, Boundaries{Factories: set}, nil, "v1", "v2")
	require.NoError(t, err)
	require.Len(t, mods, 2, "one instance per namespace")

	for _, namespace := range []string{"v1", "v2"} {
		desc, err := table.Resolve(namespace, "Clipboard")
		require.NoError(t, err, namespace)
		assert.Equal(t, "Clipboard", desc.Name())
		_, ok := desc.Method("read")
		assert.True(t, ok)
	}
	for _, m := range mods {
		assert.True(t, m.(*clipboardModule).initialized, "factory modules come back initialized")
	}
}

func TestRegisterAll_CustomWithoutFactorySet(t *testing.T) {
	cfg := Config{Custom: map[string]json.RawMessage{"Clipboard": json.RawMessage(`{}`)}}
	table, err := module.NewNamespaceTable("v1")
	require.NoError(t, err)

	_, err = RegisterAll(table, cfg, module.Dependencies{}, Boundaries{}, nil, "v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestRegisterAll_CustomUnknownFactory(t *testing.T) {
	cfg := Config{Custom: map[string]json.RawMessage{"Clipboard": json.RawMessage(`{}`)}}
	table, err := module.NewNamespaceTable("v1")
	require.NoError(t, err)

	_, err = RegisterAll(table, cfg, module.Dependencies{}, Boundaries{Factories: module.NewFactorySet()}, nil, "v1")
	require.Error(t, err)
	assert.True(t, errors.IsModuleNotFound(err), "got: %v", err)
}

func TestRegisterAll_CustomNameMismatch(t *testing.T) {
	set := module.NewFactorySet()
	require.NoError(t, set.RegisterFactory("Pasteboard", clipboardFactory))

	cfg := Config{Custom: map[string]json.RawMessage{"Pasteboard": json.RawMessage(`{}`)}}
	table, err := module.NewNamespaceTable("v1")
	require.NoError(t, err)

	_, err = RegisterAll(table, cfg, module.Dependencies{}, Boundaries{Factories: set}, nil, "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "built a module named")
}
