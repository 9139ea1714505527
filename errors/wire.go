package errors

// WireError is the structured error shape delivered to callers across the
// bridge boundary. It is the minimum {kind, message} contract; hosts may log
// richer detail but never send it to the scripting side.
type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToWire converts any error into its caller-facing shape. Unclassified
// errors degrade to the native_failure catch-all.
func ToWire(err error) *WireError {
	if err == nil {
		return nil
	}
	return &WireError{
		Kind:    KindOf(err).String(),
		Message: err.Error(),
	}
}

// Error implements the error interface so a WireError decoded from a remote
// peer can flow through local error handling.
func (we *WireError) Error() string {
	if we == nil {
		return ""
	}
	if we.Message == "" {
		return we.Kind
	}
	return we.Message
}

// Err reconstructs a classified error from the wire shape. The result
// satisfies KindOf and the Is* helpers exactly as the originating error did.
func (we *WireError) Err() error {
	if we == nil {
		return nil
	}
	kind := KindFromString(we.Kind)
	return newBridge(kind, kind.Class(), sentinelFor(kind), "remote", "call", we.Message)
}
