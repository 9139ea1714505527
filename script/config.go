package script

import (
	"time"

	"github.com/c360/bridgekit/errors"
)

// Config tunes script contexts.
type Config struct {
	// CallTimeout is the bridge timeout applied to every bridge.call a
	// script issues.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// ExecTimeout interrupts a script run that exceeds it. The interrupt
	// lands as a timeout error on the run.
	ExecTimeout time.Duration `json:"exec_timeout" yaml:"exec_timeout"`

	// QueueCapacity bounds the context's callback queue. Zero uses the
	// bridge default.
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity"`
}

// DefaultConfig returns the script context defaults.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 10 * time.Second,
		ExecTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CallTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ScriptContext", "Validate",
			"call_timeout must be positive")
	}
	if c.ExecTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ScriptContext", "Validate",
			"exec_timeout must be positive")
	}
	if c.QueueCapacity < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ScriptContext", "Validate",
			"queue_capacity must not be negative")
	}
	return nil
}
