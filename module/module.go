// Package module defines capability modules, their descriptors, the
// version-namespace registry that isolates coexisting SDK generations, and
// the property descriptors modules use to apply typed configuration.
package module

import (
	"time"
)

// Module is the interface every capability module implements so the host can
// discover, register, and inspect it.
//
// Modules implementing this interface can be:
// - Storage capabilities: persistent settings, caches
// - Device capabilities: orientation, geolocation
// - System capabilities: permissions
type Module interface {
	// Meta returns basic module information
	Meta() Metadata

	// Methods returns the declared capability set: every method the module
	// exposes across the bridge, with its signature and handler
	Methods() []Method

	// Events returns the event streams the module emits
	Events() []EventDef

	// ConfigSchema returns the configuration schema for this module
	ConfigSchema() ConfigSchema

	// Health returns current health status
	Health() HealthStatus
}

// Metadata describes what a module is
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "storage", "device", "system"
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus describes the current health state of a module
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}
