package natsclient

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKVNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrKVKeyNotFound, true},
		{"wrapped sentinel", fmt.Errorf("load settings: %w", ErrKVKeyNotFound), true},
		{"raw server message", errors.New("nats: key not found"), true},
		{"api error code", errors.New("nats: API error: code=404 err_code=10037"), true},
		{"conflict sentinel", ErrKVKeyExists, false},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsKVNotFoundError(tt.err))
		})
	}
}

func TestIsKVConflictError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"revision mismatch sentinel", ErrKVRevisionMismatch, true},
		{"key exists sentinel", ErrKVKeyExists, true},
		{"wrapped sentinel", fmt.Errorf("save settings: %w", ErrKVRevisionMismatch), true},
		{"wrong last sequence", errors.New("nats: wrong last sequence: 12"), true},
		{"sequence err code", errors.New("nats: API error: code=400 err_code=10071"), true},
		{"exists err code", errors.New("nats: API error: code=400 err_code=10058"), true},
		{"not found sentinel", ErrKVKeyNotFound, false},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsKVConflictError(tt.err))
		})
	}
}

func TestNewKVStore_Options(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	t.Run("defaults", func(t *testing.T) {
		store := client.NewKVStore(nil)
		assert.Equal(t, DefaultKVOptions(), store.options)
	})

	t.Run("overrides", func(t *testing.T) {
		store := client.NewKVStore(nil, func(o *KVOptions) {
			o.MaxRetries = 5
			o.RetryDelay = 50 * time.Millisecond
			o.Timeout = 10 * time.Second
		})

		assert.Equal(t, 5, store.options.MaxRetries)
		assert.Equal(t, 50*time.Millisecond, store.options.RetryDelay)
		assert.Equal(t, 10*time.Second, store.options.Timeout)
	})
}

func TestKVStore_RetryConfig(t *testing.T) {
	t.Run("exponential backoff", func(t *testing.T) {
		store := &KVStore{options: KVOptions{
			MaxRetries:            3,
			RetryDelay:            10 * time.Millisecond,
			MaxRetryDelay:         time.Second,
			UseExponentialBackoff: true,
		}}

		cfg := store.retryConfig()
		// MaxRetries counts additional attempts on top of the first.
		assert.Equal(t, 4, cfg.MaxAttempts)
		assert.Equal(t, 10*time.Millisecond, cfg.InitialDelay)
		assert.Equal(t, time.Second, cfg.MaxDelay)
		assert.Equal(t, 2.0, cfg.Multiplier)
		assert.True(t, cfg.AddJitter)
	})

	t.Run("constant delay", func(t *testing.T) {
		store := &KVStore{options: KVOptions{
			MaxRetries:    1,
			RetryDelay:    time.Millisecond,
			MaxRetryDelay: time.Second,
		}}

		cfg := store.retryConfig()
		assert.Equal(t, 2, cfg.MaxAttempts)
		assert.Equal(t, 1.0, cfg.Multiplier)
	})
}
