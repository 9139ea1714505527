package module

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a module
type State int

const (
	// StateCreated indicates the module was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates the module was initialized but not started
	StateInitialized
	// StateStarted indicates the module is running
	StateStarted
	// StateStopped indicates the module was stopped
	StateStopped
	// StateFailed indicates the module failed during a lifecycle operation
	StateFailed
)

// String returns a string representation of the module state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleModule defines modules that support full lifecycle management:
//   - Initialize() error                    // Setup/create only, NO context
//   - Start(ctx context.Context) error      // Start with context passed through
//   - Stop(timeout time.Duration) error     // Stop with timeout for graceful shutdown
//
// Registration happens between Initialize and Start; a module must be able to
// export its descriptor as soon as Initialize returns.
type LifecycleModule interface {
	Module
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// Managed tracks a module instance and its lifecycle state. The host stores
// the per-module child context so it can cancel modules individually during
// shutdown; the module itself only ever receives the context as a parameter.
type Managed struct {
	// Module is the actual module instance
	Module Module

	// State tracks the current lifecycle state
	State State

	Context context.Context    // child context for this specific module
	Cancel  context.CancelFunc // cancellation for this specific module

	// StartOrder tracks the order modules were started for reverse shutdown
	StartOrder int

	// LastError tracks the last error from a lifecycle operation
	LastError error
}

// IsLifecycleModule checks if a module supports lifecycle management
func IsLifecycleModule(m Module) bool {
	_, ok := m.(LifecycleModule)
	return ok
}

// AsLifecycleModule safely casts a module to LifecycleModule
func AsLifecycleModule(m Module) (LifecycleModule, bool) {
	lm, ok := m.(LifecycleModule)
	return lm, ok
}
