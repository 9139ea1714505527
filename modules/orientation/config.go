package orientation

import (
	"github.com/c360/bridgekit/errors"
)

// Config controls the orientation module.
type Config struct {
	// Platform selects the constant vocabulary the module translates
	// between: "ios" or "android".
	Platform Platform `json:"platform" yaml:"platform"`

	// InitialOrientation seeds the simulated device when no real device is
	// supplied.
	InitialOrientation string `json:"initial_orientation" yaml:"initial_orientation"`
}

// DefaultConfig returns the orientation defaults.
func DefaultConfig() Config {
	return Config{
		Platform:           PlatformIOS,
		InitialOrientation: OrientationPortrait,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Platform.Validate(); err != nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Orientation", "Validate",
			"platform: "+err.Error())
	}
	if !ValidOrientation(c.InitialOrientation) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Orientation", "Validate",
			"initial_orientation must name an interface orientation, got "+c.InitialOrientation)
	}
	return nil
}
