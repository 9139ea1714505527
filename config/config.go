package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/c360/bridgekit/bridge"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/gateway"
	"github.com/c360/bridgekit/moduleregistry"
	"github.com/c360/bridgekit/modules/settings"
	"github.com/c360/bridgekit/pkg/security"
	"github.com/c360/bridgekit/script"
)

const redactedPlaceholder = "[redacted]"

// Config is the complete host configuration. Sections for the bridge,
// script contexts, gateway, and built-in modules reuse the component
// packages' own config types so each section validates with the component
// that consumes it.
type Config struct {
	// Version is a semantic version for KV sync control. The runtime
	// Manager compares it against the version stored in KV to decide the
	// sync direction on boot.
	Version string `json:"version" yaml:"version"`

	Host HostMeta `json:"host" yaml:"host"`

	// Namespaces lists the version tags bundled into this host. Every tag
	// gets its own module registry; the set is fixed for the process
	// lifetime.
	Namespaces []string `json:"namespaces" yaml:"namespaces"`

	// Modules configures the built-in module set registered into each
	// namespace.
	Modules moduleregistry.Config `json:"modules" yaml:"modules"`

	Bridge  bridge.Config  `json:"bridge" yaml:"bridge"`
	Script  script.Config  `json:"script" yaml:"script"`
	Gateway gateway.Config `json:"gateway" yaml:"gateway"`
	Metrics MetricsConfig  `json:"metrics" yaml:"metrics"`
	NATS    NATSConfig     `json:"nats" yaml:"nats"`

	Security security.Config `json:"security,omitempty" yaml:"security,omitempty"`
}

// HostMeta identifies this host instance.
type HostMeta struct {
	// Org is the organization namespace. It prefixes NATS subjects, so it
	// must be subject-safe.
	Org         string `json:"org" yaml:"org"`
	Instance    string `json:"instance,omitempty" yaml:"instance,omitempty"`
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// MetricsConfig controls the standalone Prometheus endpoint. The gateway
// also mounts /metrics on its own mux; the standalone server exists for
// hosts that run without the gateway.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// NATSConfig defines the NATS connection used by the settings module's
// persistent store, the traffic inspector, and the runtime config manager.
type NATSConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	URLs          []string      `json:"urls,omitempty" yaml:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string        `json:"token,omitempty" yaml:"token,omitempty"`
	TLS           NATSTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// NATSTLSConfig secures the NATS connection.
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
}

// DefaultConfig returns a complete runnable configuration: one v1
// namespace, every built-in module enabled, NATS and the standalone
// metrics server off.
func DefaultConfig() *Config {
	return &Config{
		Version:    "1.0.0",
		Host:       HostMeta{Org: "c360", Environment: "dev"},
		Namespaces: []string{"v1"},
		Modules:    moduleregistry.DefaultConfig(),
		Bridge:     bridge.DefaultConfig(),
		Script:     script.DefaultConfig(),
		Gateway:    gateway.DefaultConfig(),
		Metrics:    MetricsConfig{Enabled: false, Port: 9090, Path: "/metrics"},
		NATS: NATSConfig{
			Enabled:       false,
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
	}
}

// Validate checks the whole document. Component sections validate with
// their own packages so the rules stay next to the code that enforces
// them.
func (c *Config) Validate() error {
	if c.Host.Org == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"host.org is required")
	}
	c.Host.Org = strings.ToLower(c.Host.Org)
	if !isValidSubjectPart(c.Host.Org) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("host.org %q is not subject-safe (alphanumeric, dots, dashes, underscores)", c.Host.Org))
	}

	if len(c.Namespaces) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"at least one namespace tag is required")
	}
	seen := make(map[string]struct{}, len(c.Namespaces))
	for _, tag := range c.Namespaces {
		if tag == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"namespace tags must not be empty")
		}
		if _, dup := seen[tag]; dup {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("namespace %q declared twice", tag))
		}
		seen[tag] = struct{}{}
	}

	if err := c.Modules.Validate(); err != nil {
		return err
	}
	if err := c.Bridge.Validate(); err != nil {
		return err
	}
	if err := c.Script.Validate(); err != nil {
		return err
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port != 0 && (c.Metrics.Port < 1024 || c.Metrics.Port > 65535) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("metrics.port %d out of range 1024-65535", c.Metrics.Port))
		}
	}

	if c.NATS.Enabled && len(c.NATS.URLs) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"nats.urls is required when nats is enabled")
	}
	if !c.NATS.Enabled && c.Modules.Settings != nil && c.Modules.Settings.Mode != settings.ModeMemory {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("modules.settings.mode %q requires nats.enabled", c.Modules.Settings.Mode))
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}
	return nil
}

// isValidSubjectPart reports whether s is safe inside a NATS subject.
func isValidSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// validateSecurity checks TLS material referenced by the security section.
func (c *Config) validateSecurity() error {
	srv := c.Security.TLS.Server
	if srv.Enabled {
		acmeMode := srv.Mode == "acme" && srv.ACME.Enabled
		if acmeMode {
			a := srv.ACME
			if a.DirectoryURL == "" || a.Email == "" || len(a.Domains) == 0 || a.StoragePath == "" {
				return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
					"security.tls.server.acme needs directory_url, email, domains, and storage_path")
			}
		} else if srv.CertFile == "" || srv.KeyFile == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"security.tls.server cert_file and key_file are required when TLS is enabled")
		}
		// In ACME mode the files are an optional fallback, but when named
		// they still have to exist.
		if srv.CertFile != "" {
			if _, err := os.Stat(srv.CertFile); err != nil {
				return errors.WrapInvalid(err, "Config", "Validate", "security.tls.server.cert_file")
			}
		}
		if srv.KeyFile != "" {
			if _, err := os.Stat(srv.KeyFile); err != nil {
				return errors.WrapInvalid(err, "Config", "Validate", "security.tls.server.key_file")
			}
		}
		if srv.MinVersion != "" {
			if err := validateTLSVersion(srv.MinVersion); err != nil {
				return errors.WrapInvalid(err, "Config", "Validate", "security.tls.server.min_version")
			}
		}
	}

	for i, caFile := range c.Security.TLS.Client.CAFiles {
		if _, err := os.Stat(caFile); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("security.tls.client.ca_files[%d]", i))
		}
	}
	if c.Security.TLS.Client.InsecureSkipVerify {
		_, _ = fmt.Fprintln(os.Stderr,
			"WARNING: TLS certificate verification is disabled (insecure_skip_verify=true)")
	}
	if c.Security.TLS.Client.MinVersion != "" {
		if err := validateTLSVersion(c.Security.TLS.Client.MinVersion); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "security.tls.client.min_version")
		}
	}
	return nil
}

func validateTLSVersion(version string) error {
	switch version {
	case "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS version %q (must be \"1.2\" or \"1.3\")", version)
	}
}

// Clone deep-copies the configuration through a JSON round trip.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Redacted returns a copy with credentials masked, safe for logging.
func (c *Config) Redacted() *Config {
	clone := c.Clone()
	if clone.NATS.Password != "" {
		clone.NATS.Password = redactedPlaceholder
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = redactedPlaceholder
	}
	return clone
}

// String renders the redacted configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}

// GetOrg returns the organization namespace.
func (c *Config) GetOrg() string { return c.Host.Org }

// GetInstance returns the instance identifier, falling back to the org.
func (c *Config) GetInstance() string {
	if c.Host.Instance != "" {
		return c.Host.Instance
	}
	return c.Host.Org
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// SafeConfig provides thread-safe snapshot access to a Config.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg. A nil cfg becomes an empty Config.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update validates cfg and swaps it in atomically.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.KindInvalidTarget, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "SafeConfig", "Update", "validate config")
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// CompareVersions compares two semver strings. It returns -1, 0, or 1 as
// v1 is older than, equal to, or newer than v2.
func CompareVersions(v1, v2 string) (int, error) {
	major1, minor1, patch1, err := parseSemVer(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", v1, err)
	}
	major2, minor2, patch2, err := parseSemVer(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", v2, err)
	}

	switch {
	case major1 != major2:
		if major1 > major2 {
			return 1, nil
		}
		return -1, nil
	case minor1 != minor2:
		if minor1 > minor2 {
			return 1, nil
		}
		return -1, nil
	case patch1 != patch2:
		if patch1 > patch2 {
			return 1, nil
		}
		return -1, nil
	default:
		return 0, nil
	}
}

func parseSemVer(version string) (int, int, int, error) {
	if version == "" {
		return 0, 0, 0, stderrors.New("version cannot be empty")
	}
	version = strings.TrimPrefix(version, "v")
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("version must be 'major.minor.patch', got %q", version)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid version component %q: %w", part, err)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}
