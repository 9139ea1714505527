package permissions

import (
	"time"

	"github.com/c360/bridgekit/errors"
)

// Config holds configuration for the permissions module.
type Config struct {
	// AskTimeout bounds one grant flow. A granter that never answers fails
	// the ask with a timeout instead of holding the lane forever.
	AskTimeout time.Duration `json:"ask_timeout" yaml:"ask_timeout"`

	// Initial seeds statuses per permission type, for hosts that know the
	// platform state up front. Unknown types and statuses fail validation.
	Initial map[string]Status `json:"initial" yaml:"initial"`
}

// DefaultConfig returns the default permissions configuration.
func DefaultConfig() Config {
	return Config{
		AskTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.AskTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Permissions", "Validate",
			"ask_timeout must be positive")
	}
	for typ, status := range c.Initial {
		if !ValidType(typ) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Permissions", "Validate",
				"initial status for unknown permission type "+typ)
		}
		if !status.Valid() {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Permissions", "Validate",
				"initial status for "+typ+" must be granted, denied, or undetermined")
		}
	}
	return nil
}
