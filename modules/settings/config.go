package settings

import (
	"time"

	"github.com/c360/bridgekit/errors"
)

// Mode selects the backing store.
type Mode string

// Supported storage modes.
const (
	ModeMemory Mode = "memory"
	ModeKV     Mode = "kv"
	ModeHybrid Mode = "hybrid"
)

// Config holds configuration for the settings module.
type Config struct {
	// Mode selects the backing store: memory, kv, or hybrid.
	Mode Mode `json:"mode" yaml:"mode"`

	// CacheSize bounds the LRU read cache in hybrid mode, in entries.
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// MaxValueSize caps one serialized setting value, in bytes. Oversized
	// values fail validation before anything is written.
	MaxValueSize int `json:"max_value_size" yaml:"max_value_size"`

	// KVTimeout bounds each KV operation in kv and hybrid modes.
	KVTimeout time.Duration `json:"kv_timeout" yaml:"kv_timeout"`

	// RetryAttempts is how many times a transient KV failure is retried
	// before the write is reported failed. Zero disables retries.
	RetryAttempts int `json:"retry_attempts" yaml:"retry_attempts"`

	// RetryDelay is the initial backoff between retry attempts.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// DefaultConfig returns the default settings configuration.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeMemory,
		CacheSize:     256,
		MaxValueSize:  256 * 1024,
		KVTimeout:     5 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    50 * time.Millisecond,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeMemory, ModeKV, ModeHybrid:
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Settings", "Validate",
			"mode must be memory, kv, or hybrid, got "+string(c.Mode))
	}
	if c.Mode == ModeHybrid && c.CacheSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Settings", "Validate",
			"cache_size must be positive in hybrid mode")
	}
	if c.MaxValueSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Settings", "Validate",
			"max_value_size must be positive")
	}
	if c.Mode != ModeMemory {
		if c.KVTimeout <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Settings", "Validate",
				"kv_timeout must be positive in kv and hybrid modes")
		}
		if c.RetryAttempts < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Settings", "Validate",
				"retry_attempts must not be negative")
		}
	}
	return nil
}
