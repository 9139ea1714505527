package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindUnknownVersion, "unknown_version"},
		{KindNotFound, "not_found"},
		{KindModuleNotFound, "module_not_found"},
		{KindDuplicateModule, "duplicate_module"},
		{KindTypeMismatch, "type_mismatch"},
		{KindInvalidTarget, "invalid_target"},
		{KindTimeout, "timeout"},
		{KindNativeFailure, "native_failure"},
		{Kind(999), "native_failure"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.kind.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestKindFromString_RoundTrip(t *testing.T) {
	kinds := []Kind{
		KindUnknownVersion, KindNotFound, KindModuleNotFound,
		KindDuplicateModule, KindTypeMismatch, KindInvalidTarget,
		KindTimeout, KindNativeFailure,
	}

	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			if got := KindFromString(kind.String()); got != kind {
				t.Errorf("round trip failed: %v -> %s -> %v", kind, kind.String(), got)
			}
		})
	}

	if got := KindFromString("no_such_kind"); got != KindNativeFailure {
		t.Errorf("unrecognized wire string should map to native_failure, got %v", got)
	}
}

func TestKind_Class(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected ErrorClass
	}{
		{KindUnknownVersion, ErrorFatal},
		{KindDuplicateModule, ErrorFatal},
		{KindNotFound, ErrorInvalid},
		{KindModuleNotFound, ErrorInvalid},
		{KindTypeMismatch, ErrorInvalid},
		{KindInvalidTarget, ErrorInvalid},
		{KindTimeout, ErrorTransient},
		{KindNativeFailure, ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.kind.String(), func(t *testing.T) {
			if got := test.kind.Class(); got != test.expected {
				t.Errorf("expected %v, got %v", test.expected, got)
			}
		})
	}
}

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"sentinel unknown version", ErrUnknownVersion, KindUnknownVersion},
		{"sentinel module not found", ErrModuleNotFound, KindModuleNotFound},
		{"sentinel duplicate", ErrDuplicateModule, KindDuplicateModule},
		{"sentinel type mismatch", ErrTypeMismatch, KindTypeMismatch},
		{"sentinel invalid target", ErrInvalidTarget, KindInvalidTarget},
		{"sentinel timeout", ErrTimeout, KindTimeout},
		{"wrapped sentinel", fmt.Errorf("dispatch: %w", ErrTimeout), KindTimeout},
		{"context deadline", context.DeadlineExceeded, KindTimeout},
		{"plain error", fmt.Errorf("disk on fire"), KindNativeFailure},
		{"bridge error wins over chain", &BridgeError{Kind: KindTypeMismatch, Err: ErrTimeout}, KindTypeMismatch},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := KindOf(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestKindHelpers(t *testing.T) {
	if !IsTimeout(ErrTimeout) {
		t.Error("IsTimeout should recognize the sentinel")
	}
	if !IsTimeout(WrapTimeout(fmt.Errorf("no response"), "Dispatcher", "Invoke", "await")) {
		t.Error("IsTimeout should recognize a wrapped timeout")
	}
	if IsTimeout(nil) {
		t.Error("IsTimeout(nil) should be false")
	}
	if !IsTypeMismatch(ErrTypeMismatch) {
		t.Error("IsTypeMismatch should recognize the sentinel")
	}
	if !IsModuleNotFound(fmt.Errorf("resolve: %w", ErrModuleNotFound)) {
		t.Error("IsModuleNotFound should see through wrap chains")
	}
	if !IsDuplicateModule(ErrDuplicateModule) {
		t.Error("IsDuplicateModule should recognize the sentinel")
	}
	if !IsUnknownVersion(ErrUnknownVersion) {
		t.Error("IsUnknownVersion should recognize the sentinel")
	}
	if !HasKind(ErrInvalidTarget, KindInvalidTarget) {
		t.Error("HasKind should match the sentinel kind")
	}
	if HasKind(nil, KindTimeout) {
		t.Error("HasKind(nil) should be false")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"timeout", ErrTimeout, true},
		{"native failure", ErrNativeFailure, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"type mismatch", ErrTypeMismatch, false},
		{"duplicate module", ErrDuplicateModule, false},
		{"bridge transient", &BridgeError{Kind: KindNativeFailure, Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"bridge fatal", &BridgeError{Kind: KindNativeFailure, Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"unknown version", ErrUnknownVersion, true},
		{"duplicate module", ErrDuplicateModule, true},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"timeout", ErrTimeout, false},
		{"module not found", ErrModuleNotFound, false},
		{"wrapped fatal keeps class", WrapFatal(fmt.Errorf("boom"), "Host", "Build", "registration"), true},
		{"bridge fatal", &BridgeError{Kind: KindDuplicateModule, Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"type mismatch", ErrTypeMismatch, true},
		{"invalid target", ErrInvalidTarget, true},
		{"module not found", ErrModuleNotFound, true},
		{"not found", ErrNotFound, true},
		{"timeout", ErrTimeout, false},
		{"bridge invalid", &BridgeError{Kind: KindTypeMismatch, Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != ErrorTransient {
		t.Error("nil should classify as transient default")
	}
	if Classify(ErrDuplicateModule) != ErrorFatal {
		t.Error("duplicate module should classify fatal")
	}
	if Classify(ErrTypeMismatch) != ErrorInvalid {
		t.Error("type mismatch should classify invalid")
	}
	if Classify(ErrTimeout) != ErrorTransient {
		t.Error("timeout should classify transient")
	}
}

func TestWrap_Format(t *testing.T) {
	base := fmt.Errorf("connection refused")
	err := Wrap(base, "SettingsStore", "Set", "kv put")
	if err == nil {
		t.Fatal("expected wrapped error")
	}

	expected := "SettingsStore.Set: kv put failed: connection refused"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if Wrap(nil, "C", "M", "a") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestWrapKind(t *testing.T) {
	base := fmt.Errorf("arg 2: expected number, got string")
	err := WrapKind(KindTypeMismatch, base, "Signature", "CheckArgs", "validation")

	if KindOf(err) != KindTypeMismatch {
		t.Errorf("expected type_mismatch kind, got %v", KindOf(err))
	}
	if !IsInvalid(err) {
		t.Error("type mismatch wrap should classify invalid")
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if !strings.Contains(err.Error(), "Signature.CheckArgs") {
		t.Errorf("wrap should carry component context, got %q", err.Error())
	}
}

func TestWrapFamily_PreservesChainKind(t *testing.T) {
	// A transient wrap around a taxonomy sentinel keeps the wire kind.
	err := WrapTransient(fmt.Errorf("kv: %w", ErrTimeout), "SettingsStore", "Get", "kv get")
	if KindOf(err) != KindTimeout {
		t.Errorf("expected timeout kind through transient wrap, got %v", KindOf(err))
	}

	// A fatal wrap around a plain infra error keeps the catch-all kind but
	// still halts startup.
	err = WrapFatal(fmt.Errorf("bucket create failed"), "Host", "Build", "settings store")
	if KindOf(err) != KindNativeFailure {
		t.Errorf("expected native_failure kind, got %v", KindOf(err))
	}
	if !IsFatal(err) {
		t.Error("fatal wrap should classify fatal")
	}
}

func TestNew_SentinelIntegration(t *testing.T) {
	err := Newf(KindModuleNotFound, "Registry", "Resolve", "module %q not registered", "Settings")

	if !errors.Is(err, ErrModuleNotFound) {
		t.Error("constructed error should satisfy errors.Is on the sentinel")
	}
	if !IsModuleNotFound(err) {
		t.Error("constructed error should satisfy the kind helper")
	}

	expected := `Registry.Resolve: module "Settings" not registered`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	var be *BridgeError
	if !errors.As(err, &be) {
		t.Fatal("constructed error should be a BridgeError")
	}
	if be.Component != "Registry" || be.Operation != "Resolve" {
		t.Errorf("unexpected context: %+v", be)
	}
}

func TestToWire(t *testing.T) {
	if ToWire(nil) != nil {
		t.Error("ToWire(nil) should be nil")
	}

	wire := ToWire(Newf(KindTimeout, "Dispatcher", "Invoke", "no response after %dms", 500))
	if wire.Kind != "timeout" {
		t.Errorf("expected kind timeout, got %s", wire.Kind)
	}
	if !strings.Contains(wire.Message, "no response after 500ms") {
		t.Errorf("unexpected wire message: %s", wire.Message)
	}

	// Unclassified errors degrade to the catch-all.
	wire = ToWire(fmt.Errorf("segfault in libfoo"))
	if wire.Kind != "native_failure" {
		t.Errorf("expected native_failure, got %s", wire.Kind)
	}
}

func TestWireError_Err_RoundTrip(t *testing.T) {
	original := Newf(KindInvalidTarget, "Property", "Apply", "target has no setter %q", "setColor")
	wire := ToWire(original)

	rebuilt := wire.Err()
	if KindOf(rebuilt) != KindInvalidTarget {
		t.Errorf("expected invalid_target after round trip, got %v", KindOf(rebuilt))
	}
	if !errors.Is(rebuilt, ErrInvalidTarget) {
		t.Error("rebuilt error should satisfy errors.Is on the sentinel")
	}
	if rebuilt.Error() != original.Error() {
		t.Errorf("message should survive the round trip: %q vs %q", rebuilt.Error(), original.Error())
	}

	var we *WireError
	if we.Err() != nil {
		t.Error("nil WireError should rebuild to nil")
	}
}
