// Package bridgekit is a host framework for exposing versioned native
// modules to embedded JavaScript callers over a validated, observable
// bridge.
//
// # Overview
//
// A bridgekit host embeds native modules (settings, orientation,
// permissions, geolocation, or your own) and serves them to script
// callers through a single dispatch surface. Callers address a module by
// version namespace, module name, and method; the bridge validates the
// call against the module's descriptor, runs it on a bounded worker
// pool, and resolves it with exactly one completion: a result value or a
// classified error.
//
// The host side is plain Go. A module implements the module interfaces,
// describes its methods, properties, and events with a Descriptor, and
// registers under a version namespace. Everything else (argument
// checking, timeouts, ordering, traffic inspection, metrics) is the
// bridge's job, not the module author's.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            Gateway                  │  WebSocket transport,
//	│      (gorilla/websocket, TLS)       │  invoke/complete framing
//	└─────────────────────────────────────┘
//	           ↓ invocations
//	┌─────────────────────────────────────┐
//	│           Dispatcher                │  Validation, worker pool,
//	│   (bridge: lanes, pending, wire)    │  exactly-once completion
//	└─────────────────────────────────────┘
//	           ↓ method calls
//	┌─────────────────────────────────────┐
//	│        Namespace Table              │  Version namespaces,
//	│    (frozen after host start)        │  duplicate detection
//	└─────────────────────────────────────┘
//	           ↓ handlers
//	┌─────────────────────────────────────┐
//	│        Native Modules               │  settings, orientation,
//	│     (modules/*, your own)           │  permissions, geolocation
//	└─────────────────────────────────────┘
//
// Supporting infrastructure runs alongside the dispatch path: NATS for
// settings persistence and traffic inspection (natsclient), Prometheus
// metrics with an HTTP endpoint (metric), health aggregation (health),
// and YAML configuration with fail-fast validation (config).
//
// # Version namespaces
//
// Modules register under a version tag such as "v1" or "v2". A caller's
// namespace pins the implementation set it sees; two namespaces can
// carry different implementations of the same module name side by side,
// which is how hosts roll a platform forward without breaking pinned
// callers. The table freezes when the host starts, so late registration
// is a programming error that fails loudly rather than a silent mutation
// of a live registry.
//
// # Dispatch guarantees
//
// The dispatcher gives callers three properties:
//
//   - Exactly-once completion. Every accepted invocation resolves with
//     one result or one error, never both, never twice. Timeouts and
//     shutdown produce completions too.
//   - Per-caller-per-module ordering. Invocations from one caller to one
//     module start in issuance order; independent caller and module
//     pairs run concurrently on the pool.
//   - Classified failure. Every error crossing the bridge carries one of
//     the eight taxonomy kinds from the errors package and serializes to
//     a {kind, message} wire shape scripts can switch on.
//
// # Values and errors
//
// Arguments and results cross the bridge as value.Value, a JSON-shaped
// union (null, bool, number, string, array, object). Module descriptors
// declare each method's argument and result shapes; the dispatcher
// rejects mismatches before the handler runs, so handlers never see
// malformed input.
//
// The errors package pairs the taxonomy with component and method
// context plus a wire codec. Module code wraps causes with the
// classification helpers (WrapInvalid, WrapTimeout, WrapNative, ...) and
// the bridge takes care of the rest.
//
// # Getting started
//
//	cfg, err := config.NewLoader().LoadFile("bridgekit.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
//	h, err := host.New(cfg, host.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Run blocks until the context is cancelled or a shutdown signal
//	// arrives, then drains in-flight work.
//	if err := h.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The host registers the bundled modules enabled in configuration;
// host.WithModules adds custom ones to the same namespace table. The
// binary in cmd/bridgekit wires all of it from one YAML file.
//
// # Package map
//
//   - bridge: dispatcher, pending requests, event hub, traffic inspector
//   - module: module interfaces, descriptors, namespace table
//   - moduleregistry: construction and registration of the bundled modules
//   - value: JSON value surface shared by modules and the wire
//   - errors: taxonomy, wrapping helpers, wire codec
//   - modules/...: bundled native modules
//   - script: goja runtime binding for embedded JavaScript callers
//   - gateway: WebSocket ingress with TLS, mTLS, and ACME
//   - natsclient: NATS, JetStream, and key-value plumbing
//   - config, host, health, metric: host assembly and operations
//   - pkg/...: worker pool, ring buffer, LRU cache, retry, TLS and ACME
//     utilities shared across the tree
package bridgekit
