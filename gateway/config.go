package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/bridgekit/errors"
)

// Config holds the WebSocket gateway settings.
type Config struct {
	// Port is the TCP port the attach server listens on.
	Port int `json:"port" yaml:"port"`
	// Path is the attach endpoint path.
	Path string `json:"path" yaml:"path"`
	// AllowedOrigins restricts the Origin header on upgrade requests. Empty
	// allows every origin; "*" as an element does the same explicitly.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	// MaxFrameBytes caps the size of a single client frame.
	MaxFrameBytes int64 `json:"max_frame_bytes" yaml:"max_frame_bytes"`
	// FrameRate is the sustained client frame rate per connection, in
	// frames per second.
	FrameRate float64 `json:"frame_rate" yaml:"frame_rate"`
	// FrameBurst is the rate limiter burst per connection.
	FrameBurst int `json:"frame_burst" yaml:"frame_burst"`
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	// PongTimeout is how long a connection may stay silent before it is
	// considered dead. Pongs and data frames both reset it.
	PongTimeout time.Duration `json:"pong_timeout" yaml:"pong_timeout"`
	// PingInterval is how often the server pings idle connections. Must be
	// shorter than PongTimeout.
	PingInterval time.Duration `json:"ping_interval" yaml:"ping_interval"`
	// QueueCapacity sizes each connection's event callback queue. Zero uses
	// the bridge default.
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Port:          8090,
		Path:          "/bridge/v1/attach",
		MaxFrameBytes: 1 << 20,
		FrameRate:     200,
		FrameBurst:    50,
		WriteTimeout:  10 * time.Second,
		PongTimeout:   60 * time.Second,
		PingInterval:  30 * time.Second,
	}
}

// Validate checks the configuration. Port 0 asks the kernel for an
// ephemeral port.
func (c Config) Validate() error {
	if c.Port != 0 && (c.Port < 1024 || c.Port > 65535) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Validate",
			fmt.Sprintf("port %d out of range 1024-65535", c.Port))
	}
	if c.Path == "" || !strings.HasPrefix(c.Path, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Validate",
			"path must start with /")
	}
	if c.MaxFrameBytes <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Validate",
			"max_frame_bytes must be positive")
	}
	if c.FrameRate <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Validate",
			"frame_rate must be positive")
	}
	if c.FrameBurst <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Validate",
			"frame_burst must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Validate",
			"write_timeout must be positive")
	}
	if c.PongTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Validate",
			"pong_timeout must be positive")
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Validate",
			"ping_interval must be positive and shorter than pong_timeout")
	}
	if c.QueueCapacity < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Validate",
			"queue_capacity must not be negative")
	}
	return nil
}
