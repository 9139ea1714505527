package config

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/modules/settings"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, []string{"v1"}, cfg.Namespaces)
	assert.NotNil(t, cfg.Modules.Settings)
	assert.NotNil(t, cfg.Modules.Orientation)
	assert.NotNil(t, cfg.Modules.Permissions)
	assert.NotNil(t, cfg.Modules.Geolocation)
	assert.False(t, cfg.NATS.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   error
		wantInMsg string
	}{
		{
			name:      "missing org",
			mutate:    func(c *Config) { c.Host.Org = "" },
			wantErr:   errors.ErrMissingConfig,
			wantInMsg: "host.org",
		},
		{
			name:      "org with spaces",
			mutate:    func(c *Config) { c.Host.Org = "c360 marine" },
			wantErr:   errors.ErrInvalidConfig,
			wantInMsg: "subject-safe",
		},
		{
			name:      "no namespaces",
			mutate:    func(c *Config) { c.Namespaces = nil },
			wantErr:   errors.ErrMissingConfig,
			wantInMsg: "namespace",
		},
		{
			name:      "empty namespace tag",
			mutate:    func(c *Config) { c.Namespaces = []string{"v1", ""} },
			wantErr:   errors.ErrInvalidConfig,
			wantInMsg: "empty",
		},
		{
			name:      "duplicate namespace tag",
			mutate:    func(c *Config) { c.Namespaces = []string{"v1", "v2", "v1"} },
			wantErr:   errors.ErrInvalidConfig,
			wantInMsg: "declared twice",
		},
		{
			name:      "bad modules section",
			mutate:    func(c *Config) { c.Modules.Settings.Mode = "quantum" },
			wantErr:   errors.ErrInvalidConfig,
			wantInMsg: "mode",
		},
		{
			name:      "bad bridge section",
			mutate:    func(c *Config) { c.Bridge.DefaultTimeout = 0 },
			wantErr:   errors.ErrInvalidConfig,
			wantInMsg: "default_timeout",
		},
		{
			name:      "bad script section",
			mutate:    func(c *Config) { c.Script.CallTimeout = -time.Second },
			wantErr:   errors.ErrInvalidConfig,
			wantInMsg: "call_timeout",
		},
		{
			name:      "bad gateway section",
			mutate:    func(c *Config) { c.Gateway.Path = "no-slash" },
			wantErr:   errors.ErrInvalidConfig,
			wantInMsg: "path",
		},
		{
			name: "metrics port out of range",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 80
			},
			wantErr:   errors.ErrInvalidConfig,
			wantInMsg: "metrics.port",
		},
		{
			name: "nats enabled without urls",
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.URLs = nil
			},
			wantErr:   errors.ErrMissingConfig,
			wantInMsg: "nats.urls",
		},
		{
			name: "kv settings without nats",
			mutate: func(c *Config) {
				c.NATS.Enabled = false
				c.Modules.Settings.Mode = settings.ModeKV
			},
			wantErr:   errors.ErrInvalidConfig,
			wantInMsg: "requires nats.enabled",
		},
		{
			name: "tls enabled without cert",
			mutate: func(c *Config) {
				c.Security.TLS.Server.Enabled = true
			},
			wantErr:   errors.ErrMissingConfig,
			wantInMsg: "cert_file",
		},
		{
			name: "acme mode missing directory url",
			mutate: func(c *Config) {
				c.Security.TLS.Server.Enabled = true
				c.Security.TLS.Server.Mode = "acme"
				c.Security.TLS.Server.ACME.Enabled = true
				c.Security.TLS.Server.ACME.Email = "ops@bridgekit.local"
				c.Security.TLS.Server.ACME.Domains = []string{"bridge.example.com"}
				c.Security.TLS.Server.ACME.StoragePath = "/var/lib/bridgekit/acme"
			},
			wantErr:   errors.ErrMissingConfig,
			wantInMsg: "acme",
		},
		{
			name: "bad client tls version",
			mutate: func(c *Config) {
				c.Security.TLS.Client.MinVersion = "1.0"
			},
			wantInMsg: "TLS version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Contains(t, err.Error(), tt.wantInMsg)
		})
	}
}

func TestConfig_ValidateLowercasesOrg(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host.Org = "C360"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "c360", cfg.Host.Org)
}

func TestConfig_CloneIndependence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NATS.URLs = []string{"nats://a:4222"}

	clone := cfg.Clone()
	clone.Host.Org = "mutated"
	clone.Namespaces[0] = "v99"
	clone.NATS.URLs[0] = "nats://b:4222"
	clone.Modules.Settings.CacheSize = 12345

	assert.Equal(t, "c360", cfg.Host.Org)
	assert.Equal(t, "v1", cfg.Namespaces[0])
	assert.Equal(t, "nats://a:4222", cfg.NATS.URLs[0])
	assert.NotEqual(t, 12345, cfg.Modules.Settings.CacheSize)
}

func TestConfig_RedactedMasksCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NATS.Password = "hunter2"
	cfg.NATS.Token = "s3cret-token"

	redacted := cfg.Redacted()
	assert.Equal(t, "[redacted]", redacted.NATS.Password)
	assert.Equal(t, "[redacted]", redacted.NATS.Token)

	// Original untouched.
	assert.Equal(t, "hunter2", cfg.NATS.Password)

	rendered := cfg.String()
	assert.NotContains(t, rendered, "hunter2")
	assert.NotContains(t, rendered, "s3cret-token")
	assert.Contains(t, rendered, "[redacted]")
}

func TestConfig_RedactedLeavesEmptyCredentials(t *testing.T) {
	cfg := DefaultConfig()
	redacted := cfg.Redacted()
	assert.Empty(t, redacted.NATS.Password)
	assert.Empty(t, redacted.NATS.Token)
}

func TestConfig_GetInstance(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "c360", cfg.GetInstance())

	cfg.Host.Instance = "vessel-07"
	assert.Equal(t, "vessel-07", cfg.GetInstance())
	assert.Equal(t, "c360", cfg.GetOrg())
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		v1, v2  string
		want    int
		wantErr bool
	}{
		{"1.0.0", "1.0.0", 0, false},
		{"2.0.0", "1.9.9", 1, false},
		{"1.2.0", "1.10.0", -1, false},
		{"1.0.1", "1.0.0", 1, false},
		{"v1.2.3", "1.2.3", 0, false},
		{"1.0", "1.0.0", 0, true},
		{"", "1.0.0", 0, true},
		{"1.a.0", "1.0.0", 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_vs_%s", tt.v1, tt.v2), func(t *testing.T) {
			got, err := CompareVersions(tt.v1, tt.v2)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeConfig_NilHandling(t *testing.T) {
	safe := NewSafeConfig(nil)

	cfg := safe.Get()
	require.NotNil(t, cfg)

	err := safe.Update(nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidTarget, errors.KindOf(err))
}

func TestSafeConfig_ValidationDuringUpdate(t *testing.T) {
	safe := NewSafeConfig(DefaultConfig())

	invalid := DefaultConfig()
	invalid.Host.Org = ""
	err := safe.Update(invalid)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	// Rejected update must not replace the current config.
	assert.Equal(t, "c360", safe.Get().Host.Org)
}

func TestSafeConfig_GetReturnsCopy(t *testing.T) {
	safe := NewSafeConfig(DefaultConfig())

	snapshot := safe.Get()
	snapshot.Host.Org = "mutated"

	assert.Equal(t, "c360", safe.Get().Host.Org)
}

func TestSafeConfig_ThreadSafety(t *testing.T) {
	safe := NewSafeConfig(DefaultConfig())

	const numGoroutines = 100
	const numOperations = 200

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines/2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				cfg := safe.Get()
				if cfg == nil {
					errs <- fmt.Errorf("got nil config")
					return
				}
				if !strings.HasPrefix(cfg.Host.Org, "c360") {
					errs <- fmt.Errorf("unexpected org: %s", cfg.Host.Org)
					return
				}
			}
		}()
	}

	for i := 0; i < numGoroutines/2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < numOperations/10; j++ {
				next := DefaultConfig()
				next.Host.Org = fmt.Sprintf("c360-%d", n)
				if err := safe.Update(next); err != nil {
					errs <- fmt.Errorf("update failed: %w", err)
					return
				}
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent access error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("test timed out, possible deadlock")
	}
}
