// Package errors provides standardized error handling patterns for bridgekit.
//
// # Overview
//
// The errors package implements the bridge error taxonomy: eight error kinds
// that cross the scripting/native boundary (UnknownVersion, NotFound,
// ModuleNotFound, DuplicateModule, TypeMismatch, InvalidTarget, Timeout, and
// the NativeFailure catch-all), plus a three-class propagation model
// (Transient, Invalid, Fatal) that tells the host how to treat each failure.
//
// Kinds answer "what does the caller see"; classes answer "what does the host
// do". Registration-phase kinds (UnknownVersion, DuplicateModule) are Fatal
// and halt initialization. Per-call kinds are delivered to the one caller
// whose request failed and never disturb other in-flight requests.
//
// # Error Kinds
//
// Each kind has a stable wire string used in the {kind, message} error
// surface:
//
//   - unknown_version: version tag has no bundled implementation set
//   - not_found: generic lookup miss (cross-namespace lookups always miss)
//   - module_not_found: module name absent from the resolved namespace
//   - duplicate_module: (namespace, name) registered twice
//   - type_mismatch: argument or property value fails tagged-type validation
//   - invalid_target: property target does not expose the bound setter
//   - timeout: native side never completed within the caller's deadline
//   - native_failure: catch-all wrapping an underlying platform error
//
// # Quick Start
//
// Construct kinded errors at the point of failure:
//
//	return errors.Newf(errors.KindModuleNotFound, "Registry", "Resolve",
//	    "module %q not registered in namespace %q", name, ns)
//
// Wrap third-party errors with component context:
//
//	if err := kv.Put(ctx, key, data); err != nil {
//	    return errors.WrapNative(err, "SettingsStore", "Set", "kv put")
//	}
//
// Check kinds through wrap chains:
//
//	if errors.IsTimeout(err) {
//	    // the native side never responded; retrying is the caller's call
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing and debugging across the host.
// The Wrap family applies the pattern while attaching kind and class:
//
//	errors.WrapKind(errors.KindTypeMismatch, err, "Signature", "CheckArgs", "arg 2")
//	errors.WrapNative(err, "Orientation", "Lock", "device apply")   // catch-all kind
//	errors.WrapTimeout(err, "Dispatcher", "Invoke", "await completion")
//	errors.WrapFatal(err, "Host", "registerModules", "settings")    // halts startup
//
// The generic Wrap() adds context without classification and preserves
// whatever kind is already on the chain.
//
// # Wire Surface
//
// Errors delivered to scripting or remote callers are reduced to the minimum
// structured shape:
//
//	wire := errors.ToWire(err)   // &WireError{Kind: "timeout", Message: "..."}
//
// A WireError decoded from a remote peer reconstructs into a classified
// error with Err(), so gateway clients handle remote failures exactly like
// local ones.
//
// # Integration with errors.Is/As
//
// All error types support standard library inspection:
//
//	var be *errors.BridgeError
//	if errors.As(err, &be) {
//	    log.Printf("component=%s kind=%s", be.Component, be.Kind)
//	}
//
//	if errors.Is(err, errors.ErrDuplicateModule) {
//	    // duplicate registration leaves the original intact
//	}
//
// Kind classification is preserved through wrap chains: wrapping
// ErrTimeout with Wrap() still satisfies IsTimeout.
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Sentinel
// variables are immutable and safe for concurrent access. BridgeError is
// safe to share across goroutines after creation.
//
// # Design Philosophy
//
//   - Classification over string matching: errors carry explicit kinds
//   - Wrapping over replacement: preserve original errors, add context
//   - Standards over invention: use Go's error idioms (Is/As/Unwrap)
//   - The dispatcher never retries: transient classification informs the
//     caller, not an automatic retry loop
package errors
