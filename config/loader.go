package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/bridgekit/errors"
)

// durationPaths lists the dotted config paths that accept duration strings
// ("250ms", "2s", "1d") in files. The loader rewrites them to nanoseconds
// before the document is validated and unmarshaled.
var durationPaths = []string{
	"bridge.default_timeout",
	"bridge.max_timeout",
	"script.call_timeout",
	"script.exec_timeout",
	"gateway.write_timeout",
	"gateway.pong_timeout",
	"gateway.ping_interval",
	"nats.reconnect_wait",
	"modules.settings.kv_timeout",
	"modules.settings.retry_delay",
}

// Loader merges configuration layers over the defaults. Later layers win;
// environment variables win over files.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with schema validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "BRIDGEKIT",
	}
}

// AddLayer appends a configuration file layer. JSON and YAML are accepted,
// chosen by extension.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation toggles schema plus semantic validation of the merged
// document.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads a single file over the defaults.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges all layers over the defaults, applies environment overrides,
// and validates the result.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(DefaultConfig())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		layer, err := l.loadRawLayer(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load",
				fmt.Sprintf("load layer %s", path))
		}
		merged = deepMergeMaps(merged, layer)
	}

	if l.validation {
		if err := validateDocument(merged); err != nil {
			return nil, err
		}
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRawLayer reads one layer into a raw map and normalizes duration
// strings.
func (l *Loader) loadRawLayer(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	}

	convertDurations(raw)
	return raw, nil
}

// convertDurations rewrites known duration-string fields to nanoseconds.
func convertDurations(raw map[string]any) {
	for _, path := range durationPaths {
		keys := strings.Split(path, ".")
		current := raw
		ok := true
		for _, key := range keys[:len(keys)-1] {
			next, isMap := current[key].(map[string]any)
			if !isMap {
				ok = false
				break
			}
			current = next
		}
		if !ok {
			continue
		}
		leaf := keys[len(keys)-1]
		if s, isStr := current[leaf].(string); isStr {
			if d, err := parseDurationWithDays(s); err == nil {
				current[leaf] = d.Nanoseconds()
			}
		}
	}
}

// parseDurationWithDays parses durations that may carry a day suffix
// (e.g. "14d").
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// deepMergeMaps merges override into base recursively; override wins on
// conflicts. Explicit nulls in a layer are skipped, not applied.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies BRIDGEKIT_* environment variables on top of the
// merged configuration.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(suffix string) (string, error) {
		key := l.envPrefix + suffix
		val := os.Getenv(key)
		if err := validateEnvVar(key, val); err != nil {
			return "", errors.WrapInvalid(err, "Loader", "Load", "environment override")
		}
		return val, nil
	}

	strVars := []struct {
		suffix string
		target *string
	}{
		{"_VERSION", &cfg.Version},
		{"_HOST_ORG", &cfg.Host.Org},
		{"_HOST_INSTANCE", &cfg.Host.Instance},
		{"_HOST_ENVIRONMENT", &cfg.Host.Environment},
		{"_NATS_USERNAME", &cfg.NATS.Username},
		{"_NATS_PASSWORD", &cfg.NATS.Password},
		{"_NATS_TOKEN", &cfg.NATS.Token},
	}
	for _, v := range strVars {
		val, err := get(v.suffix)
		if err != nil {
			return err
		}
		if val != "" {
			*v.target = val
		}
	}

	listVars := []struct {
		suffix string
		target *[]string
	}{
		{"_NAMESPACES", &cfg.Namespaces},
		{"_NATS_URLS", &cfg.NATS.URLs},
	}
	for _, v := range listVars {
		val, err := get(v.suffix)
		if err != nil {
			return err
		}
		if val != "" {
			parts := strings.Split(val, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			*v.target = parts
		}
	}

	intVars := []struct {
		suffix string
		target *int
	}{
		{"_GATEWAY_PORT", &cfg.Gateway.Port},
		{"_METRICS_PORT", &cfg.Metrics.Port},
	}
	for _, v := range intVars {
		val, err := get(v.suffix)
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "Load",
				fmt.Sprintf("environment override %s%s must be an integer", l.envPrefix, v.suffix))
		}
		*v.target = n
	}

	if val, err := get("_NATS_ENABLED"); err != nil {
		return err
	} else if val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "Load",
				fmt.Sprintf("environment override %s_NATS_ENABLED must be a boolean", l.envPrefix))
		}
		cfg.NATS.Enabled = enabled
	}

	return nil
}
