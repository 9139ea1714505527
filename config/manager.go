package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/modules/geolocation"
	"github.com/c360/bridgekit/modules/orientation"
	"github.com/c360/bridgekit/modules/permissions"
	"github.com/c360/bridgekit/modules/settings"
	"github.com/c360/bridgekit/natsclient"
)

// Update is a configuration change notification.
type Update struct {
	Path   string      // changed key, e.g. "modules.settings"
	Config *SafeConfig // full latest configuration
}

// Manager mirrors the host configuration into a NATS KV bucket so that
// operators can adjust module and bridge settings at runtime. Sections
// published to KV are watched; changes flow back through SafeConfig.Update
// and out to OnChange subscribers.
//
// The nats and security sections never enter KV: they configure the
// transport the bucket itself rides on.
type Manager struct {
	config      *SafeConfig
	kv          jetstream.KeyValue
	kvStore     *natsclient.KVStore
	watchers    []jetstream.KeyWatcher
	subscribers map[string][]chan Update
	mu          sync.RWMutex // protects subscribers
	logger      *slog.Logger

	shutdownCh chan struct{}
	wg         sync.WaitGroup
	stopped    atomic.Bool
}

// NewConfigManager creates a manager backed by the bridgekit_config bucket.
func NewConfigManager(cfg *Config, natsClient *natsclient.Client, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindInvalidTarget, "ConfigManager", "New", "nil config")
	}
	if natsClient == nil {
		return nil, errors.New(errors.KindInvalidTarget, "ConfigManager", "New", "nil nats client")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()
	kv, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      "bridgekit_config",
		Description: "BridgeKit runtime configuration",
		History:     5,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "ConfigManager", "New", "create config bucket")
	}

	return &Manager{
		config:      NewSafeConfig(cfg),
		kv:          kv,
		kvStore:     natsClient.NewKVStore(kv),
		subscribers: make(map[string][]chan Update),
		logger:      logger.With("component", "ConfigManager"),
	}, nil
}

// GetConfig returns the managed configuration.
func (cm *Manager) GetConfig() *SafeConfig {
	return cm.config
}

// OnChange subscribes to configuration changes matching the pattern.
// Patterns are either exact keys ("bridge", "modules.settings") or
// single-level wildcards ("modules.*"). The returned channel receives the
// current configuration immediately and every matching change afterwards;
// slow subscribers miss intermediate updates rather than blocking the
// watch loop.
func (cm *Manager) OnChange(pattern string) <-chan Update {
	ch := make(chan Update, 1)

	cm.mu.Lock()
	cm.subscribers[pattern] = append(cm.subscribers[pattern], ch)
	cm.mu.Unlock()

	select {
	case ch <- Update{Path: pattern, Config: cm.config}:
	default:
	}

	return ch
}

// Start reconciles file and KV configuration, then begins watching for
// runtime changes. On first boot the file config seeds the bucket; on later
// boots the newer of the two versions wins.
func (cm *Manager) Start(ctx context.Context) error {
	cm.shutdownCh = make(chan struct{})

	hasConfig, err := cm.hasKVConfig(ctx)
	if err != nil {
		cm.logger.Warn("failed to check KV config existence, assuming first boot", "error", err)
		hasConfig = false
	}

	if !hasConfig {
		cm.logger.Info("first boot detected, seeding config bucket")
		if err := cm.PushToKV(ctx); err != nil {
			// Hosts can run without the bucket seeded; operators just
			// won't see config until the next push.
			cm.logger.Error("failed to seed config bucket", "error", err)
		}
	} else {
		cm.reconcile(ctx)
	}

	// Single-level wildcards keep property-level keys out of the watch.
	patterns := []string{
		"modules.*",
		"bridge",
		"script",
		"gateway",
		"metrics",
		"host",
		"namespaces",
	}

	cm.watchers = make([]jetstream.KeyWatcher, 0, len(patterns))

	cleanup := func() {
		for _, w := range cm.watchers {
			if w != nil {
				_ = w.Stop()
			}
		}
		cm.watchers = nil
	}

	for _, pattern := range patterns {
		// UpdatesOnly: existing values were already reconciled above.
		watcher, err := cm.kv.Watch(ctx, pattern, jetstream.UpdatesOnly())
		if err != nil {
			cm.logger.Debug("failed to create watcher", "pattern", pattern, "error", err)
			continue
		}
		cm.watchers = append(cm.watchers, watcher)
	}

	if len(cm.watchers) == 0 {
		cleanup()
		return errors.New(errors.KindNativeFailure, "ConfigManager", "Start", "failed to create any watchers")
	}

	for _, watcher := range cm.watchers {
		cm.wg.Add(1)
		go cm.processWatcher(ctx, watcher)
	}

	return nil
}

// reconcile decides the sync direction on a non-first boot.
func (cm *Manager) reconcile(ctx context.Context) {
	fileVersion := cm.config.Get().Version
	kvVersion, err := cm.getKVVersion(ctx)
	if err != nil {
		cm.logger.Warn("failed to get KV version, syncing from KV", "error", err)
		if err := cm.syncFromKV(ctx); err != nil {
			cm.logger.Warn("failed to sync from KV on startup", "error", err)
		}
		return
	}

	cmp, err := CompareVersions(fileVersion, kvVersion)
	switch {
	case err != nil:
		cm.logger.Warn("failed to compare versions, syncing from KV",
			"file_version", fileVersion,
			"kv_version", kvVersion,
			"error", err)
		if err := cm.syncFromKV(ctx); err != nil {
			cm.logger.Warn("failed to sync from KV on startup", "error", err)
		}
	case cmp > 0:
		cm.logger.Info("file version is newer than KV, updating KV",
			"file_version", fileVersion,
			"kv_version", kvVersion)
		if err := cm.PushToKV(ctx); err != nil {
			cm.logger.Error("failed to update KV with newer config", "error", err)
		}
	case cmp < 0:
		cm.logger.Warn("file version is older than KV, using KV config",
			"file_version", fileVersion,
			"kv_version", kvVersion,
			"hint", "bump the file version to update KV")
		if err := cm.syncFromKV(ctx); err != nil {
			cm.logger.Warn("failed to sync from KV on startup", "error", err)
		}
	default:
		cm.logger.Info("file and KV versions match, syncing from KV", "version", fileVersion)
		if err := cm.syncFromKV(ctx); err != nil {
			cm.logger.Warn("failed to sync from KV on startup", "error", err)
		}
	}
}

// Stop halts the watchers and closes all subscriber channels.
func (cm *Manager) Stop(timeout time.Duration) error {
	if !cm.stopped.CompareAndSwap(false, true) {
		return nil
	}

	if cm.shutdownCh != nil {
		close(cm.shutdownCh)
	}

	for _, watcher := range cm.watchers {
		if watcher != nil {
			_ = watcher.Stop()
		}
	}

	done := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		cm.logger.Warn("manager shutdown timeout", "timeout", timeout)
	}

	// Close subscriber channels only after the watch goroutines are done.
	cm.mu.Lock()
	for _, channels := range cm.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	cm.subscribers = make(map[string][]chan Update)
	cm.mu.Unlock()

	return nil
}

func (cm *Manager) processWatcher(ctx context.Context, watcher jetstream.KeyWatcher) {
	defer cm.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cm.shutdownCh:
			return
		case entry := <-watcher.Updates():
			if entry != nil {
				cm.handleUpdate(entry.Key(), entry.Value())
			}
		}
	}
}

func (cm *Manager) handleUpdate(key string, value []byte) {
	if cm.stopped.Load() {
		return
	}

	if err := cm.updateConfig(key, value); err != nil {
		cm.logger.Error("failed to apply configuration update", "key", key, "error", err)
		return
	}

	update := Update{Path: key, Config: cm.config}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for pattern, channels := range cm.subscribers {
		if !matchesPattern(key, pattern) {
			continue
		}
		for _, ch := range channels {
			if cm.stopped.Load() {
				return
			}
			// Non-blocking send: slow consumers skip updates.
			select {
			case ch <- update:
			default:
			}
		}
	}
}

// matchesPattern checks a key against a subscription pattern.
func matchesPattern(key, pattern string) bool {
	if pattern == key {
		return true
	}

	// "modules.*" matches "modules.settings" but not "modules".
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(key, prefix+".")
	}

	// "modules.geo*" matches "modules.geolocation".
	if strings.Contains(pattern, "*") {
		parts := strings.SplitN(pattern, "*", 2)
		return strings.HasPrefix(key, parts[0])
	}

	return false
}

// updateConfig folds a single KV entry into the managed configuration.
// SafeConfig.Update validates the result, so a KV write that would produce
// an invalid configuration is rejected here and logged by the caller.
func (cm *Manager) updateConfig(key string, value []byte) error {
	if len(value) > 0 {
		if len(value) > maxConfigSize {
			return fmt.Errorf("config value too large: %d bytes > %d", len(value), maxConfigSize)
		}
		if err := validateJSONDepth(value); err != nil {
			return fmt.Errorf("invalid JSON structure in KV update: %w", err)
		}
	}

	cfg := cm.config.Get()

	parts := strings.Split(key, ".")
	switch parts[0] {
	case "modules":
		if len(parts) != 2 {
			return fmt.Errorf("invalid module key format: %s", key)
		}
		if err := applyModuleUpdate(cfg, parts[1], value); err != nil {
			return err
		}

	case "bridge":
		if len(value) == 0 {
			return nil // section deletion resets nothing
		}
		if err := json.Unmarshal(value, &cfg.Bridge); err != nil {
			return fmt.Errorf("parse bridge config: %w", err)
		}

	case "script":
		if len(value) == 0 {
			return nil
		}
		if err := json.Unmarshal(value, &cfg.Script); err != nil {
			return fmt.Errorf("parse script config: %w", err)
		}

	case "gateway":
		if len(value) == 0 {
			return nil
		}
		if err := json.Unmarshal(value, &cfg.Gateway); err != nil {
			return fmt.Errorf("parse gateway config: %w", err)
		}

	case "metrics":
		if len(value) == 0 {
			return nil
		}
		if err := json.Unmarshal(value, &cfg.Metrics); err != nil {
			return fmt.Errorf("parse metrics config: %w", err)
		}

	case "host":
		if len(value) == 0 {
			return nil
		}
		if err := json.Unmarshal(value, &cfg.Host); err != nil {
			return fmt.Errorf("parse host config: %w", err)
		}

	case "namespaces":
		if len(value) == 0 {
			return nil
		}
		if err := json.Unmarshal(value, &cfg.Namespaces); err != nil {
			return fmt.Errorf("parse namespaces: %w", err)
		}

	default:
		// Unknown top-level key, ignore.
		return nil
	}

	return cm.config.Update(cfg)
}

// applyModuleUpdate switches a modules.<name> entry into the typed module
// section. A deleted key disables the module.
func applyModuleUpdate(cfg *Config, name string, value []byte) error {
	switch name {
	case "settings":
		if len(value) == 0 {
			cfg.Modules.Settings = nil
			return nil
		}
		var mc settings.Config
		if err := json.Unmarshal(value, &mc); err != nil {
			return fmt.Errorf("parse settings module config: %w", err)
		}
		cfg.Modules.Settings = &mc

	case "orientation":
		if len(value) == 0 {
			cfg.Modules.Orientation = nil
			return nil
		}
		var mc orientation.Config
		if err := json.Unmarshal(value, &mc); err != nil {
			return fmt.Errorf("parse orientation module config: %w", err)
		}
		cfg.Modules.Orientation = &mc

	case "permissions":
		if len(value) == 0 {
			cfg.Modules.Permissions = nil
			return nil
		}
		var mc permissions.Config
		if err := json.Unmarshal(value, &mc); err != nil {
			return fmt.Errorf("parse permissions module config: %w", err)
		}
		cfg.Modules.Permissions = &mc

	case "geolocation":
		if len(value) == 0 {
			cfg.Modules.Geolocation = nil
			return nil
		}
		var mc geolocation.Config
		if err := json.Unmarshal(value, &mc); err != nil {
			return fmt.Errorf("parse geolocation module config: %w", err)
		}
		cfg.Modules.Geolocation = &mc

	default:
		// Unknown module name, ignore.
	}
	return nil
}

// sanitizeNATSKey replaces characters invalid in NATS KV keys.
func sanitizeNATSKey(key string) string {
	return strings.ReplaceAll(key, " ", "_")
}

// PushToKV publishes the current configuration to the bucket, one key per
// tunable section.
func (cm *Manager) PushToKV(ctx context.Context) error {
	cfg := cm.config.Get()

	if cfg.Version != "" {
		data, err := json.Marshal(cfg.Version)
		if err != nil {
			return errors.WrapNative(err, "ConfigManager", "PushToKV", "marshal version")
		}
		cm.logger.Info("pushing version to KV", "version", cfg.Version)
		if _, err := cm.kvStore.Put(ctx, "version", data); err != nil {
			return errors.WrapTransient(err, "ConfigManager", "PushToKV", "push version")
		}
	} else {
		cm.logger.Warn("config version is empty, not pushing to KV")
	}

	sections := map[string]any{
		"host":       cfg.Host,
		"namespaces": cfg.Namespaces,
		"bridge":     cfg.Bridge,
		"script":     cfg.Script,
		"gateway":    cfg.Gateway,
		"metrics":    cfg.Metrics,
	}
	for key, section := range sections {
		data, err := json.Marshal(section)
		if err != nil {
			return errors.WrapNative(err, "ConfigManager", "PushToKV", "marshal "+key)
		}
		if len(data) <= 2 {
			continue // skip empty {} and []
		}
		if _, err := cm.kvStore.Put(ctx, sanitizeNATSKey(key), data); err != nil {
			return errors.WrapTransient(err, "ConfigManager", "PushToKV", "push "+key)
		}
	}

	modules := map[string]any{}
	if cfg.Modules.Settings != nil {
		modules["modules.settings"] = cfg.Modules.Settings
	}
	if cfg.Modules.Orientation != nil {
		modules["modules.orientation"] = cfg.Modules.Orientation
	}
	if cfg.Modules.Permissions != nil {
		modules["modules.permissions"] = cfg.Modules.Permissions
	}
	if cfg.Modules.Geolocation != nil {
		modules["modules.geolocation"] = cfg.Modules.Geolocation
	}
	for key, section := range modules {
		data, err := json.Marshal(section)
		if err != nil {
			return errors.WrapNative(err, "ConfigManager", "PushToKV", "marshal "+key)
		}
		if _, err := cm.kvStore.Put(ctx, sanitizeNATSKey(key), data); err != nil {
			return errors.WrapTransient(err, "ConfigManager", "PushToKV", "push "+key)
		}
	}

	return nil
}

// hasKVConfig reports whether the bucket holds any configuration.
func (cm *Manager) hasKVConfig(ctx context.Context) (bool, error) {
	keys, err := cm.kvStore.Keys(ctx)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// getKVVersion retrieves the version key. A missing or unreadable version
// is treated as 0.0.0 so the file config wins.
func (cm *Manager) getKVVersion(ctx context.Context) (string, error) {
	entry, err := cm.kvStore.Get(ctx, "version")
	if err != nil {
		return "0.0.0", nil
	}

	var version string
	if err := json.Unmarshal(entry.Value, &version); err != nil {
		cm.logger.Warn("failed to parse version from KV, treating as 0.0.0", "error", err)
		return "0.0.0", nil
	}
	return version, nil
}

// syncFromKV loads all section keys from the bucket into the managed config.
func (cm *Manager) syncFromKV(ctx context.Context) error {
	keys, err := cm.kvStore.Keys(ctx)
	if err != nil {
		return errors.WrapTransient(err, "ConfigManager", "syncFromKV", "list keys")
	}

	for _, key := range keys {
		if key == "version" {
			continue
		}
		// Property-level keys (3+ parts) are not section documents.
		if strings.Count(key, ".") > 1 {
			cm.logger.Debug("skipping property-level key during sync", "key", key)
			continue
		}

		entry, err := cm.kvStore.Get(ctx, key)
		if err != nil {
			cm.logger.Warn("failed to get KV entry during sync", "key", key, "error", err)
			continue
		}

		if err := cm.updateConfig(key, entry.Value); err != nil {
			cm.logger.Warn("failed to apply KV config during sync", "key", key, "error", err)
		}
	}

	cm.logger.Info("synced configuration from KV", "keys", len(keys))
	return nil
}
