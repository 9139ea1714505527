package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/value"
)

// Invocation is one capability call crossing the bridge. Every call follows
// the same asynchronous contract regardless of how fast the native side
// completes: the caller hands the dispatcher an Invocation and later observes
// exactly one Completion correlated by RequestID.
type Invocation struct {
	// RequestID correlates the eventual completion with this call. Callers
	// may supply their own ids (remote protocols do); an empty id is
	// assigned a fresh UUID at dispatch.
	RequestID string `json:"request_id"`

	// CallerID identifies the issuing caller (script context or gateway
	// connection). Ordering is guaranteed per (CallerID, Module) pair.
	CallerID string `json:"caller_id"`

	// Namespace is the version namespace tag the module is resolved in.
	Namespace string `json:"namespace"`

	// Module and Method name the capability being invoked.
	Module string `json:"module"`
	Method string `json:"method"`

	// Args are the positional arguments, validated against the declared
	// signature before dispatch.
	Args []value.Value `json:"args,omitempty"`

	// Timeout bounds how long the caller waits for the native side. Zero
	// means the dispatcher default applies.
	Timeout time.Duration `json:"-"`
}

// NewRequestID returns a fresh unique request id.
func NewRequestID() string {
	return uuid.NewString()
}

// Completion is the single terminal outcome of an invocation: exactly one of
// Result or Err is set. It is what crosses back to the caller, with Err
// already flattened to the {kind, message} wire shape.
type Completion struct {
	RequestID string            `json:"request_id"`
	Result    value.Value       `json:"result,omitempty"`
	Err       *errors.WireError `json:"error,omitempty"`
}

// IsError reports whether the completion carries an error.
func (c Completion) IsError() bool {
	return c.Err != nil
}

// Status returns the completion status label used in metrics and traffic
// records: "ok", "timeout", or "error".
func (c Completion) Status() string {
	if c.Err == nil {
		return "ok"
	}
	if c.Err.Kind == errors.KindTimeout.String() {
		return "timeout"
	}
	return "error"
}
