package module

import (
	"log/slog"

	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/types"
	"github.com/c360/bridgekit/value"
)

// HostMeta provides host identity to modules.
// Type alias to avoid import cycles while maintaining compatibility.
type HostMeta = types.HostMeta

// Emitter delivers a module's events into the bridge. The bridge binds one
// emitter per (namespace, module) pair; modules never talk to subscribers
// directly and never run scripting-side code on their own threads.
type Emitter interface {
	Emit(event string, payload value.Value)
}

// Dependencies provides all external dependencies needed by modules.
// Modules receive properly structured dependencies rather than individual
// fields.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client for persistent storage (can be nil)
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	Emitter         Emitter                 // Event sink bound by the bridge (can be nil)
	Host            HostMeta                // Host identity (organization and host)
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithModule returns a logger configured with module context
func (d *Dependencies) GetLoggerWithModule(moduleName string) *slog.Logger {
	return d.GetLogger().With("module", moduleName)
}

// Emit forwards an event to the bound emitter, dropping it when no emitter
// is attached. Modules call this instead of checking for nil themselves.
func (d *Dependencies) Emit(event string, payload value.Value) {
	if d.Emitter != nil {
		d.Emitter.Emit(event, payload)
	}
}
