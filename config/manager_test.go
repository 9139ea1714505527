package config

import (
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		pattern  string
		expected bool
	}{
		{"exact match", "bridge", "bridge", true},
		{"exact match two-part", "modules.settings", "modules.settings", true},
		{"wildcard suffix", "modules.settings", "modules.*", true},
		{"wildcard suffix other module", "modules.geolocation", "modules.*", true},
		{"wildcard does not match bare prefix", "modules", "modules.*", false},
		{"prefix wildcard", "modules.geolocation", "modules.geo*", true},
		{"prefix wildcard no match", "modules.settings", "modules.geo*", false},
		{"different section", "bridge", "modules.*", false},
		{"wrong exact", "bridge", "gateway", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesPattern(tt.key, tt.pattern)
			assert.Equal(t, tt.expected, got, "pattern %s matching key %s", tt.pattern, tt.key)
		})
	}
}

// newDetachedManager builds a manager without a NATS connection for
// exercising the update fold logic.
func newDetachedManager(cfg *Config) *Manager {
	return &Manager{
		config:      NewSafeConfig(cfg),
		subscribers: make(map[string][]chan Update),
		logger:      slog.Default(),
	}
}

func TestManager_UpdateConfig_Sections(t *testing.T) {
	cm := newDetachedManager(DefaultConfig())

	err := cm.updateConfig("bridge", []byte(`{
		"default_timeout": 250000000,
		"max_timeout": 30000000000,
		"workers": 16,
		"queue_size": 512
	}`))
	require.NoError(t, err)
	assert.Equal(t, 16, cm.config.Get().Bridge.Workers)

	err = cm.updateConfig("gateway", []byte(`{"port": 9443, "path": "/bridge/v1/attach",
		"max_frame_bytes": 1048576, "frame_rate": 200, "frame_burst": 50,
		"write_timeout": 10000000000, "pong_timeout": 60000000000,
		"ping_interval": 30000000000, "queue_capacity": 256}`))
	require.NoError(t, err)
	assert.Equal(t, 9443, cm.config.Get().Gateway.Port)

	err = cm.updateConfig("host", []byte(`{"org": "acme", "instance": "vessel-07"}`))
	require.NoError(t, err)
	assert.Equal(t, "acme", cm.config.Get().Host.Org)

	err = cm.updateConfig("namespaces", []byte(`["v1", "v2"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, cm.config.Get().Namespaces)
}

func TestManager_UpdateConfig_Modules(t *testing.T) {
	cm := newDetachedManager(DefaultConfig())

	err := cm.updateConfig("modules.settings", []byte(`{
		"mode": "memory", "cache_size": 64, "max_value_size": 65536,
		"kv_timeout": 3000000000, "retry_attempts": 3, "retry_delay": 100000000
	}`))
	require.NoError(t, err)
	require.NotNil(t, cm.config.Get().Modules.Settings)
	assert.Equal(t, 64, cm.config.Get().Modules.Settings.CacheSize)

	// Deleting the key disables the module.
	err = cm.updateConfig("modules.geolocation", nil)
	require.NoError(t, err)
	assert.Nil(t, cm.config.Get().Modules.Geolocation)

	// Unknown module names are ignored, not errors.
	err = cm.updateConfig("modules.flux_capacitor", []byte(`{"enabled": true}`))
	require.NoError(t, err)
}

func TestManager_UpdateConfig_Rejections(t *testing.T) {
	cm := newDetachedManager(DefaultConfig())

	// Malformed JSON.
	err := cm.updateConfig("bridge", []byte(`{not json`))
	require.Error(t, err)

	// Update producing an invalid config is rejected by SafeConfig.Update.
	err = cm.updateConfig("bridge", []byte(`{"default_timeout": 0}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_timeout")

	// Rejected updates leave the current config untouched.
	assert.Equal(t, DefaultConfig().Bridge.DefaultTimeout, cm.config.Get().Bridge.DefaultTimeout)

	// Oversized values never reach the decoder.
	big := []byte(`{"x": "` + strings.Repeat("a", maxConfigSize) + `"}`)
	err = cm.updateConfig("bridge", big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	// Nesting bombs are rejected up front.
	err = cm.updateConfig("bridge", []byte(strings.Repeat(`{"a":`, maxJSONDepth+5)))
	require.Error(t, err)

	// Unknown top-level keys are ignored.
	err = cm.updateConfig("ballast", []byte(`{"x": 1}`))
	require.NoError(t, err)

	// Malformed module key (three parts).
	err = cm.updateConfig("modules.settings.cache_size", []byte(`64`))
	require.Error(t, err)
}

func TestManager_UpdateConfig_KeepsNamespacesValid(t *testing.T) {
	cm := newDetachedManager(DefaultConfig())

	err := cm.updateConfig("namespaces", []byte(`[]`))
	require.Error(t, err)
	assert.Equal(t, []string{"v1"}, cm.config.Get().Namespaces)
}

func TestNewConfigManager_Validation(t *testing.T) {
	_, err := NewConfigManager(nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil config")

	_, err = NewConfigManager(DefaultConfig(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil nats client")
}

func TestSanitizeNATSKey(t *testing.T) {
	assert.Equal(t, "modules.settings", sanitizeNATSKey("modules.settings"))
	assert.Equal(t, "my_key", sanitizeNATSKey("my key"))
}

func TestManager_SectionRoundTrip(t *testing.T) {
	// Section documents must survive the marshal/unmarshal pair the manager
	// uses for KV values.
	cfg := DefaultConfig()
	cfg.Gateway.Port = 9443

	data, err := json.Marshal(cfg.Gateway)
	require.NoError(t, err)

	cm := newDetachedManager(DefaultConfig())
	require.NoError(t, cm.updateConfig("gateway", data))
	assert.Equal(t, 9443, cm.config.Get().Gateway.Port)
	assert.Equal(t, cfg.Gateway.WriteTimeout, cm.config.Get().Gateway.WriteTimeout)
}
