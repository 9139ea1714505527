package geolocation

import (
	"time"

	"github.com/c360/bridgekit/errors"
)

// Config holds configuration for the geolocation module.
type Config struct {
	// RequestTimeout bounds one getCurrentPosition read when the caller's
	// options carry no timeout of their own.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// MaxWatches caps concurrent position watches per module instance.
	MaxWatches int `json:"max_watches" yaml:"max_watches"`
}

// DefaultConfig returns the default geolocation configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		MaxWatches:     32,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Geolocation", "Validate",
			"request_timeout must be positive")
	}
	if c.MaxWatches <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Geolocation", "Validate",
			"max_watches must be positive")
	}
	return nil
}
