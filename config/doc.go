// Package config provides layered configuration management for BridgeKit
// hosts: typed sections for every subsystem, JSON/YAML file layers, schema
// validation, environment overrides, and an optional NATS KV mirror for
// runtime changes.
//
// # Configuration Layers
//
// A host builds its configuration from layers, later layers overriding
// earlier ones. Defaults always form the base layer:
//
//	loader := config.NewLoader().
//	    LoadFile("bridgekit.yaml").
//	    LoadFile("bridgekit.local.json")
//
//	cfg, err := loader.Load()
//	if err != nil {
//	    return err
//	}
//
// Files may be JSON or YAML; both decode into the same document shape.
// Duration fields accept Go duration strings ("250ms", "30s") plus a "d"
// suffix for days ("14d"). Before typed decoding, the merged document is
// checked against an embedded JSON Schema so typos in section or field
// names fail loudly instead of silently falling back to defaults.
//
// # Environment Overrides
//
// After file layers merge, BRIDGEKIT_* environment variables override
// individual fields, which keeps secrets out of config files:
//
//	BRIDGEKIT_HOST_ORG=acme
//	BRIDGEKIT_NAMESPACES=v1,v2
//	BRIDGEKIT_GATEWAY_PORT=9443
//	BRIDGEKIT_NATS_URLS=nats://n1:4222,nats://n2:4222
//	BRIDGEKIT_NATS_PASSWORD=...
//
// # Thread-Safe Access
//
// SafeConfig wraps a Config for concurrent readers and writers. Get returns
// a deep clone, so callers can never corrupt shared state; Update validates
// before swapping:
//
//	safe := config.NewSafeConfig(cfg)
//	current := safe.Get()
//
// Secrets never leak through logs: String and Redacted mask credential
// fields before rendering.
//
// # Runtime Configuration
//
// When NATS is enabled, Manager mirrors tunable sections into the
// bridgekit_config KV bucket, one key per section ("bridge", "gateway",
// "modules.settings", ...). Operators edit the bucket; the manager folds
// changes back through SafeConfig.Update and notifies subscribers:
//
//	manager, err := config.NewConfigManager(cfg, natsClient, logger)
//	if err != nil {
//	    return err
//	}
//	if err := manager.Start(ctx); err != nil {
//	    return err
//	}
//	defer manager.Stop(5 * time.Second)
//
//	for update := range manager.OnChange("modules.*") {
//	    applyModuleSettings(update.Config.Get())
//	}
//
// On boot the manager reconciles the file and bucket by comparing semantic
// versions: a newer file version seeds the bucket, a newer bucket version
// wins with a warning, equal versions sync from the bucket so UI edits
// survive restarts.
//
// The nats and security sections are file-and-environment only. They
// configure the transport the bucket itself rides on, so mutating them at
// runtime cannot take effect safely.
package config
