// Package errors provides standardized error handling for bridgekit components.
// It defines the bridge error taxonomy (error kinds carried across the
// scripting/native boundary), error classification for propagation decisions,
// and helper functions for consistent wrapping across the system.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a bridge error on the wire. Every error delivered to a
// caller across the bridge boundary carries exactly one Kind.
type Kind int

const (
	// KindNativeFailure is the catch-all for an underlying platform error.
	// It is the zero value so unclassified errors degrade to it.
	KindNativeFailure Kind = iota
	// KindUnknownVersion means a version tag has no bundled implementation set.
	KindUnknownVersion
	// KindNotFound means a cross-namespace or generic lookup missed.
	KindNotFound
	// KindModuleNotFound means a module name is absent from the resolved namespace.
	KindModuleNotFound
	// KindDuplicateModule means a (namespace, name) pair was registered twice.
	KindDuplicateModule
	// KindTypeMismatch means a value's runtime type is incompatible with the
	// declared signature or property type.
	KindTypeMismatch
	// KindInvalidTarget means a property target does not expose the bound setter.
	KindInvalidTarget
	// KindTimeout means the native side never completed within the caller's deadline.
	KindTimeout
)

// String returns the wire representation of the Kind, as used in the
// {kind, message} error surface.
func (k Kind) String() string {
	switch k {
	case KindUnknownVersion:
		return "unknown_version"
	case KindNotFound:
		return "not_found"
	case KindModuleNotFound:
		return "module_not_found"
	case KindDuplicateModule:
		return "duplicate_module"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindInvalidTarget:
		return "invalid_target"
	case KindTimeout:
		return "timeout"
	default:
		return "native_failure"
	}
}

// KindFromString maps a wire string back to its Kind. Unrecognized strings
// map to KindNativeFailure so a malformed peer cannot mint new kinds.
func KindFromString(s string) Kind {
	switch s {
	case "unknown_version":
		return KindUnknownVersion
	case "not_found":
		return KindNotFound
	case "module_not_found":
		return KindModuleNotFound
	case "duplicate_module":
		return KindDuplicateModule
	case "type_mismatch":
		return KindTypeMismatch
	case "invalid_target":
		return KindInvalidTarget
	case "timeout":
		return KindTimeout
	default:
		return KindNativeFailure
	}
}

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors; retries are the caller's
	// decision, never the dispatcher's
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or lookup misses
	ErrorInvalid
	// ErrorFatal represents registration-phase errors that must halt initialization
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Class returns the propagation class for a Kind. Registration-phase kinds
// are fatal and halt host initialization; per-call kinds are delivered to the
// specific caller and never crash the dispatcher.
func (k Kind) Class() ErrorClass {
	switch k {
	case KindUnknownVersion, KindDuplicateModule:
		return ErrorFatal
	case KindNotFound, KindModuleNotFound, KindTypeMismatch, KindInvalidTarget:
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// Standard error variables for common conditions
var (
	// Bridge taxonomy sentinels
	ErrUnknownVersion  = errors.New("unknown version")
	ErrNotFound        = errors.New("not found")
	ErrModuleNotFound  = errors.New("module not found")
	ErrDuplicateModule = errors.New("module already registered")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrInvalidTarget   = errors.New("invalid target")
	ErrTimeout         = errors.New("call timed out")
	ErrNativeFailure   = errors.New("native call failed")

	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Registry and dispatch errors
	ErrRegistryFrozen   = errors.New("registry is frozen")
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrQueueFull        = errors.New("callback queue full")
	ErrCompleted        = errors.New("request already completed")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// sentinelKinds maps taxonomy sentinels to their Kind for classification.
var sentinelKinds = map[error]Kind{
	ErrUnknownVersion:  KindUnknownVersion,
	ErrNotFound:        KindNotFound,
	ErrModuleNotFound:  KindModuleNotFound,
	ErrDuplicateModule: KindDuplicateModule,
	ErrTypeMismatch:    KindTypeMismatch,
	ErrInvalidTarget:   KindInvalidTarget,
	ErrTimeout:         KindTimeout,
	ErrNativeFailure:   KindNativeFailure,
}

// BridgeError wraps an error with its bridge kind, propagation class, and
// component context. Kind is what the caller sees on the wire; Class is how
// the host treats the error (halt initialization vs deliver to one caller).
// The two usually agree but infrastructure errors wrapped fatal keep the
// catch-all kind while still halting startup.
type BridgeError struct {
	Kind      Kind
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (be *BridgeError) Error() string {
	if be.Message != "" {
		return be.Message
	}
	if be.Err != nil {
		return be.Err.Error()
	}
	return be.Kind.String()
}

// Unwrap returns the underlying error
func (be *BridgeError) Unwrap() error {
	return be.Err
}

// KindOf returns the bridge kind for an error. The outermost BridgeError
// wins; taxonomy sentinels are recognized through wrap chains; context
// deadline errors map to KindTimeout. Everything else is KindNativeFailure.
func KindOf(err error) Kind {
	if err == nil {
		return KindNativeFailure
	}

	var be *BridgeError
	if errors.As(err, &be) {
		return be.Kind
	}

	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	return KindNativeFailure
}

// HasKind reports whether err classifies to the given kind.
func HasKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// IsTimeout checks whether an error is a bridge timeout.
func IsTimeout(err error) bool {
	return err != nil && KindOf(err) == KindTimeout
}

// IsTypeMismatch checks whether an error is a validation type mismatch.
func IsTypeMismatch(err error) bool {
	return err != nil && KindOf(err) == KindTypeMismatch
}

// IsModuleNotFound checks whether an error is a registry lookup miss.
func IsModuleNotFound(err error) bool {
	return err != nil && KindOf(err) == KindModuleNotFound
}

// IsDuplicateModule checks whether an error is a duplicate registration.
func IsDuplicateModule(err error) bool {
	return err != nil && KindOf(err) == KindDuplicateModule
}

// IsUnknownVersion checks whether an error is an unknown namespace tag.
func IsUnknownVersion(err error) bool {
	return err != nil && KindOf(err) == KindUnknownVersion
}

// IsTransient checks if an error may clear on its own; retrying is the
// caller's decision
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var be *BridgeError
	if errors.As(err, &be) {
		return be.Class == ErrorTransient
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	return KindOf(err).Class() == ErrorTransient
}

// IsFatal checks if an error must halt initialization
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var be *BridgeError
	if errors.As(err, &be) {
		return be.Class == ErrorFatal
	}

	if errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig) {
		return true
	}

	return KindOf(err).Class() == ErrorFatal
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var be *BridgeError
	if errors.As(err, &be) {
		return be.Class == ErrorInvalid
	}

	return KindOf(err).Class() == ErrorInvalid
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

// newBridge creates a new kinded error.
// This is an internal helper - use New(), Newf(), or the Wrap family instead.
func newBridge(kind Kind, class ErrorClass, err error, component, operation, message string) *BridgeError {
	return &BridgeError{
		Kind:      kind,
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// New creates a kinded error with component context following the pattern
// "component.method: message".
func New(kind Kind, component, method, message string) error {
	msg := fmt.Sprintf("%s.%s: %s", component, method, message)
	return newBridge(kind, kind.Class(), sentinelFor(kind), component, method, msg)
}

// Newf creates a kinded error with a formatted message.
func Newf(kind Kind, component, method, format string, args ...any) error {
	return New(kind, component, method, fmt.Sprintf(format, args...))
}

// sentinelFor returns the taxonomy sentinel backing a kind so errors.Is
// works on constructed errors.
func sentinelFor(kind Kind) error {
	for sentinel, k := range sentinelKinds {
		if k == kind {
			return sentinel
		}
	}
	return ErrNativeFailure
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapKind wraps an error under an explicit bridge kind with context
func WrapKind(kind Kind, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newBridge(kind, kind.Class(), wrappedErr, component, method, wrappedErr.Error())
}

// WrapNative wraps an underlying platform error as the catch-all kind
func WrapNative(err error, component, method, action string) error {
	return WrapKind(KindNativeFailure, err, component, method, action)
}

// WrapTimeout wraps an error as a caller-visible timeout
func WrapTimeout(err error, component, method, action string) error {
	return WrapKind(KindTimeout, err, component, method, action)
}

// WrapTransient wraps an error as transient with context, keeping whatever
// taxonomy kind is already on the chain
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newBridge(KindOf(err), ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context, keeping whatever
// taxonomy kind is already on the chain
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newBridge(KindOf(err), ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as a registration-phase failure with context,
// keeping whatever taxonomy kind is already on the chain
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newBridge(KindOf(err), ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}
