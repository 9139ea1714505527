// Package module provides the core module infrastructure for BridgeKit,
// enabling versioned module registration, method dispatch metadata, property
// binding, and instance creation.
//
// # Overview
//
// The module package defines the fundamental abstractions for native bridge
// modules. A module is a named bundle of callable methods and emittable
// events that scripting-side callers reach through the bridge dispatcher.
// Modules are self-describing units that can be introspected at runtime,
// configured through schemas, and managed through their lifecycle.
//
// Each module instance is bound to exactly one version namespace. Namespaces
// partition the registry so that callers pinned to different bundled
// implementation versions resolve independent module sets with no fallback
// between them.
//
// # Version Namespaces
//
// A Namespace is an opaque version tag ("v1", "v2", ...). The NamespaceTable
// owns one NamespaceRegistry per declared tag:
//
//	table, err := module.NewNamespaceTable("v1", "v2")
//	if err != nil {
//		return err
//	}
//
//	reg, err := table.NamespaceFor("v1")   // idempotent: same handle every time
//	if err != nil {
//		// unknown version tag
//	}
//
// Looking up a tag that was never declared returns a KindUnknownVersion
// error. There is no implicit creation and no cross-namespace fallback:
// a module registered under "v2" is invisible to "v1" callers.
//
// # Module Registration Pattern
//
// BridgeKit uses EXPLICIT registration rather than init() self-registration.
// Each module package exports a Register function, moduleregistry.RegisterAll
// orchestrates them, and main controls what gets registered:
//
//	// In modules/settings/settings.go
//	func Register(set *module.FactorySet) error {
//		return set.RegisterFactory("settings", CreateSettingsModule)
//	}
//
//	// In moduleregistry/register.go
//	func RegisterAll(set *module.FactorySet) error {
//		if err := settings.Register(set); err != nil {
//			return err
//		}
//		// ... more registrations
//		return nil
//	}
//
// Registration happens during the initialization phase only. Once the host
// finishes wiring modules it freezes every registry; late Register calls
// fail with ErrRegistryFrozen. A duplicate module name within a namespace
// fails with KindDuplicateModule and leaves the original registration
// untouched. Any registration error is fatal to startup: a bridge with a
// partially registered module set must not serve callers.
//
// # Quick Start
//
//	table, _ := module.NewNamespaceTable("v1")
//	reg, _ := table.NamespaceFor("v1")
//
//	desc, err := module.NewDescriptor("v1", settingsModule)
//	if err != nil {
//		return err
//	}
//	if err := reg.Register(desc); err != nil {
//		return err
//	}
//	table.FreezeAll()
//
//	// Hot path: lock-free resolution.
//	desc, err = reg.Resolve("settings")
//
// # Methods and Signatures
//
// Module methods carry a declared signature that the dispatcher checks
// before any native code runs:
//
//	module.Method{
//		Name: "set",
//		Signature: value.Signature{
//			Params: []value.Param{
//				value.P("key", value.TypeString),
//				value.P("value", value.TypeAny),
//			},
//			Result: value.TypeNull,
//		},
//		Func: s.set,
//	}
//
// Arity and per-argument type checks run against the tagged value
// representation. A mismatch rejects the invocation with KindTypeMismatch
// and the handler never executes.
//
// # Property Descriptors
//
// PropertyDescriptor pairs a setter with the value type it accepts, so a
// host-side target object can be populated from script-provided values with
// the type check made before any mutation:
//
//	desc, _ := module.NewPropertyDescriptor("interval", value.TypeNumber,
//		func(target any, v value.Value) error {
//			cfg := target.(*PollerConfig)
//			n, err := v.NumberVal()
//			if err != nil {
//				return err
//			}
//			cfg.Interval = time.Duration(n) * time.Millisecond
//			return nil
//		})
//
// Descriptors compare equal when both the setter identity and the declared
// type match. A zero-valued descriptor fails Validate and never reaches a
// target. Apply checks the value type first and returns KindTypeMismatch
// without touching the target on mismatch.
//
// # Dependencies
//
// All external dependencies are injected through the Dependencies struct:
//
//	deps := module.Dependencies{
//		NATSClient:      natsClient,     // optional: KV-backed modules
//		MetricsRegistry: metricsRegistry, // optional: Prometheus metrics
//		Logger:          slog.Default(),  // optional: structured logging
//		Emitter:         hub,             // optional: event emission
//		Host:            module.HostMeta{Org: "c360", Host: "bridge1"},
//	}
//
// GetLogger and Emit are nil-safe so modules never guard against missing
// optional dependencies themselves.
//
// # Factory Pattern
//
// Module factories follow a consistent signature:
//
//	type Factory func(rawConfig json.RawMessage, deps Dependencies) (Module, error)
//
// Factories receive raw JSON configuration and parse it themselves, usually
// through SafeUnmarshal which enforces size limits and invokes the config
// struct's Validate method when present.
//
// # Registry Thread Safety
//
// Registration is serialized under a mutex and publishes a fresh immutable
// module table through an atomic pointer swap. Resolution loads the current
// table with a single atomic read: no locks, no contention with concurrent
// resolvers, safe against a registration racing the freeze. Once frozen a
// registry never changes, so resolvers may cache nothing and still pay only
// the atomic load.
//
// # Error Handling
//
// Operations return errors from the bridgekit errors package so callers can
// branch on kind:
//
//	_, err := reg.Resolve("Settings")
//	if errors.HasKind(err, errors.KindModuleNotFound) {
//		// unknown module, reject the invocation
//	}
//
// # Testing
//
// The explicit registration pattern keeps tests isolated: create a fresh
// NamespaceTable per test, register only the modules under test, and use
// mock Dependencies. See registry_test.go and property_test.go for the
// patterns.
package module
