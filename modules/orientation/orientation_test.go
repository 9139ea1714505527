package orientation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/value"
)

type emittedEvent struct {
	event   string
	payload value.Value
}

type captureEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (e *captureEmitter) Emit(event string, payload value.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emittedEvent{event: event, payload: payload})
}

func (e *captureEmitter) snapshot() []emittedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]emittedEvent, len(e.events))
	copy(out, e.events)
	return out
}

// startedModule builds an iOS-platform module with a simulated device.
func startedModule(t *testing.T, namespace string, emitter module.Emitter) *Module {
	t.Helper()
	m, err := New(namespace, DefaultConfig(), module.Dependencies{Emitter: emitter}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(time.Second) })
	return m
}

func call(t *testing.T, m *Module, method string, args ...value.Value) (value.Value, error) {
	t.Helper()
	for _, meth := range m.Methods() {
		if meth.Name == method {
			require.NoError(t, meth.Signature.Check(ModuleName, method, args))
			return meth.Func(context.Background(), args)
		}
	}
	t.Fatalf("module declares no method %q", method)
	return value.Null(), nil
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "android", mutate: func(c *Config) { c.Platform = PlatformAndroid }},
		{name: "unknown platform", mutate: func(c *Config) { c.Platform = "windows" }, wantErr: true},
		{name: "unknown orientation", mutate: func(c *Config) { c.InitialOrientation = "sideways" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	t.Run("invalid namespace", func(t *testing.T) {
		_, err := New("v 1", DefaultConfig(), module.Dependencies{}, nil)
		require.Error(t, err)
		assert.True(t, errors.IsUnknownVersion(err))
	})

	t.Run("device platform must match config", func(t *testing.T) {
		dev, err := NewSimulatedDevice(PlatformAndroid, OrientationPortrait)
		require.NoError(t, err)
		_, err = New("v1", DefaultConfig(), module.Dependencies{}, dev)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})
}

func TestOrientation_LockFlow(t *testing.T) {
	emitter := &captureEmitter{}
	m := startedModule(t, "v1", emitter)

	got, err := call(t, m, "getOrientation")
	require.NoError(t, err)
	assert.Equal(t, value.NewString(OrientationPortrait), got)

	// Locking to landscape snaps the device out of portrait and reports it.
	_, err = call(t, m, "lock", value.NewString("landscape"))
	require.NoError(t, err)

	got, err = call(t, m, "getOrientation")
	require.NoError(t, err)
	assert.Equal(t, value.NewString(OrientationLandscapeLeft), got)

	events := emitter.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventOrientationChanged, events[0].event)
	o, ok := events[0].payload.Get("orientation")
	require.True(t, ok)
	assert.Equal(t, value.NewString(OrientationLandscapeLeft), o)

	n, err := call(t, m, "getPlatformLock", value.NewString("ios"))
	require.NoError(t, err)
	assert.Equal(t, value.NewNumber(24), n)

	_, err = call(t, m, "unlock")
	require.NoError(t, err)

	n, err = call(t, m, "getPlatformLock", value.NewString("ios"))
	require.NoError(t, err)
	assert.Equal(t, value.NewNumber(30), n)
}

func TestOrientation_LockRejectsUnknownNames(t *testing.T) {
	m := startedModule(t, "v1", nil)

	_, err := call(t, m, "lock", value.NewString("diagonal"))
	require.Error(t, err)
	assert.True(t, errors.IsTypeMismatch(err))

	// Android vocabulary does not apply to an iOS module.
	_, err = call(t, m, "lock", value.NewString("sensorLandscape"))
	require.Error(t, err)
	assert.True(t, errors.IsTypeMismatch(err))
}

func TestOrientation_RotateRespectsLock(t *testing.T) {
	emitter := &captureEmitter{}
	m := startedModule(t, "v1", emitter)
	dev := m.device.(*SimulatedDevice)

	_, err := call(t, m, "lock", value.NewString("portrait"))
	require.NoError(t, err)
	assert.Empty(t, emitter.snapshot(), "locking to the current orientation emits nothing")

	moved, err := dev.Rotate(OrientationLandscapeLeft)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, OrientationPortrait, dev.Orientation())
	assert.Empty(t, emitter.snapshot())

	_, err = call(t, m, "unlock")
	require.NoError(t, err)

	moved, err = dev.Rotate(OrientationLandscapeLeft)
	require.NoError(t, err)
	assert.True(t, moved)

	events := emitter.snapshot()
	require.Len(t, events, 1)
	o, ok := events[0].payload.Get("orientation")
	require.True(t, ok)
	assert.Equal(t, value.NewString(OrientationLandscapeLeft), o)
}

func TestOrientation_GetPlatformLockCrossPlatform(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Platform = PlatformAndroid
	m, err := New("v1", cfg, module.Dependencies{}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(time.Second) })

	// A portable name translates into both vocabularies.
	_, err = call(t, m, "lock", value.NewString("portrait"))
	require.NoError(t, err)

	n, err := call(t, m, "getPlatformLock", value.NewString("android"))
	require.NoError(t, err)
	assert.Equal(t, value.NewNumber(1), n)

	n, err = call(t, m, "getPlatformLock", value.NewString("ios"))
	require.NoError(t, err)
	assert.Equal(t, value.NewNumber(2), n)

	// An Android-only name has no iOS constant.
	_, err = call(t, m, "lock", value.NewString("fullSensor"))
	require.NoError(t, err)

	n, err = call(t, m, "getPlatformLock", value.NewString("android"))
	require.NoError(t, err)
	assert.Equal(t, value.NewNumber(10), n)

	_, err = call(t, m, "getPlatformLock", value.NewString("ios"))
	require.Error(t, err)
	assert.True(t, errors.IsTypeMismatch(err))

	_, err = call(t, m, "getPlatformLock", value.NewString("windows"))
	require.Error(t, err)
	assert.True(t, errors.IsTypeMismatch(err))
}

func TestOrientation_Lifecycle(t *testing.T) {
	emitter := &captureEmitter{}
	m := startedModule(t, "v1", emitter)
	dev := m.device.(*SimulatedDevice)

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)

	assert.True(t, m.Health().Healthy)

	require.NoError(t, m.Stop(time.Second))
	assert.False(t, m.Health().Healthy)
	require.NoError(t, m.Stop(time.Second))

	// Stopping unbinds the change callback.
	moved, err := dev.Rotate(OrientationLandscapeRight)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Empty(t, emitter.snapshot())
}

func TestOrientation_Register(t *testing.T) {
	table, err := module.NewNamespaceTable("v1", "v2")
	require.NoError(t, err)
	mods, err := Register(table, DefaultConfig(), module.Dependencies{}, "v1", "v2")
	require.NoError(t, err)
	require.Len(t, mods, 2)

	desc, err := table.Resolve("v1", ModuleName)
	require.NoError(t, err)
	assert.Contains(t, desc.MethodNames(), "getPlatformLock")
	_, ok := desc.Event(EventOrientationChanged)
	assert.True(t, ok)

	// Each namespace gets its own device.
	require.NoError(t, mods[0].Start(context.Background()))
	require.NoError(t, mods[1].Start(context.Background()))
	_, err = call(t, mods[0], "lock", value.NewString("landscapeRight"))
	require.NoError(t, err)

	got, err := call(t, mods[0], "getOrientation")
	require.NoError(t, err)
	assert.Equal(t, value.NewString(OrientationLandscapeRight), got)

	got, err = call(t, mods[1], "getOrientation")
	require.NoError(t, err)
	assert.Equal(t, value.NewString(OrientationPortrait), got)
}

func TestSimulatedDevice(t *testing.T) {
	t.Run("freeze locks keep current orientation", func(t *testing.T) {
		dev, err := NewSimulatedDevice(PlatformAndroid, OrientationLandscapeLeft)
		require.NoError(t, err)

		require.NoError(t, dev.ApplyLock("locked"))
		assert.Equal(t, OrientationLandscapeLeft, dev.Orientation())

		moved, err := dev.Rotate(OrientationPortrait)
		require.NoError(t, err)
		assert.False(t, moved)
	})

	t.Run("snap picks the canonical orientation", func(t *testing.T) {
		dev, err := NewSimulatedDevice(PlatformIOS, OrientationPortrait)
		require.NoError(t, err)

		var seen []string
		dev.OnChange(func(o string) { seen = append(seen, o) })

		require.NoError(t, dev.ApplyLock("landscapeRight"))
		assert.Equal(t, OrientationLandscapeRight, dev.Orientation())
		assert.Equal(t, []string{OrientationLandscapeRight}, seen)

		lock, locked := dev.CurrentLock()
		assert.True(t, locked)
		assert.Equal(t, "landscapeRight", lock)
	})

	t.Run("rotate to same orientation is a no-op", func(t *testing.T) {
		dev, err := NewSimulatedDevice(PlatformIOS, OrientationPortrait)
		require.NoError(t, err)
		moved, err := dev.Rotate(OrientationPortrait)
		require.NoError(t, err)
		assert.False(t, moved)
	})

	t.Run("unknown rotation target", func(t *testing.T) {
		dev, err := NewSimulatedDevice(PlatformIOS, OrientationPortrait)
		require.NoError(t, err)
		_, err = dev.Rotate("sideways")
		require.Error(t, err)
		assert.True(t, errors.IsTypeMismatch(err))
	})
}
