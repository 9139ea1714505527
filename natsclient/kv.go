package natsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/bridgekit/pkg/retry"
)

// Well-known KV errors.
var (
	ErrKVKeyNotFound        = errors.New("kv: key not found")
	ErrKVKeyExists          = errors.New("kv: key already exists")
	ErrKVRevisionMismatch   = errors.New("kv: revision mismatch (concurrent update)")
	ErrKVMaxRetriesExceeded = errors.New("kv: max retries exceeded")
)

// KVEntry carries a value together with the revision needed for CAS
// writes.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions tunes KV operation behavior.
type KVOptions struct {
	MaxRetries            int           // additional CAS attempts after the first
	RetryDelay            time.Duration // initial delay between attempts
	Timeout               time.Duration // per-operation timeout
	MaxValueSize          int           // reject values larger than this
	UseExponentialBackoff bool
	MaxRetryDelay         time.Duration
}

// DefaultKVOptions suits settings-style workloads: small documents,
// occasional contention.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		MaxRetries:            10,
		RetryDelay:            10 * time.Millisecond,
		Timeout:               5 * time.Second,
		MaxValueSize:          1024 * 1024,
		UseExponentialBackoff: true,
		MaxRetryDelay:         time.Second,
	}
}

// KVStore layers CAS retry loops, JSON helpers and stable error
// mapping over a raw KV bucket.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  Logger
}

// NewKVStore wraps a bucket obtained from CreateKeyValueBucket or
// GetKeyValueBucket.
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  c.logger,
	}
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with the revision needed to update it.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, ErrKVKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}

	return &KVEntry{
		Key:      key,
		Value:    entry.Value(),
		Revision: entry.Revision(),
	}, nil
}

// GetJSON retrieves a key and unmarshals its value into out.
func (kv *KVStore) GetJSON(ctx context.Context, key string, out any) error {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return fmt.Errorf("kv unmarshal %s: %w", key, err)
	}
	return nil
}

// Put writes a key unconditionally. The last writer wins.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}

	if kv.logger != nil {
		kv.logger.Debugf("kv put %s rev=%d", key, rev)
	}
	return rev, nil
}

// Create writes a key that must not exist yet. An existing key fails
// with ErrKVKeyExists.
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, ErrKVKeyExists
		}
		return 0, fmt.Errorf("kv create %s: %w", key, err)
	}

	if kv.logger != nil {
		kv.logger.Debugf("kv create %s rev=%d", key, rev)
	}
	return rev, nil
}

// Update writes a key only if revision still matches the stored entry.
// A lost race fails with ErrKVRevisionMismatch.
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, ErrKVRevisionMismatch
		}
		return 0, fmt.Errorf("kv update %s: %w", key, err)
	}

	if kv.logger != nil {
		kv.logger.Debugf("kv update %s rev %d -> %d", key, revision, rev)
	}
	return rev, nil
}

// retryConfig translates KVOptions into the retry package's terms.
// MaxRetries counts additional attempts, retry.Config counts all of
// them.
func (kv *KVStore) retryConfig() retry.Config {
	config := retry.Config{
		MaxAttempts:  kv.options.MaxRetries + 1,
		InitialDelay: kv.options.RetryDelay,
		MaxDelay:     kv.options.MaxRetryDelay,
		AddJitter:    true,
	}

	if kv.options.UseExponentialBackoff {
		config.Multiplier = 2.0
	} else {
		config.Multiplier = 1.0
	}

	return config
}

// UpdateWithRetry runs a read-modify-write loop on a key. updateFn
// receives the current value (nil when the key is missing) and returns
// the replacement; lost CAS races are retried until the attempt budget
// runs out, then reported as ErrKVMaxRetriesExceeded. Errors from
// updateFn itself stop the loop immediately.
func (kv *KVStore) UpdateWithRetry(ctx context.Context, key string,
	updateFn func(current []byte) ([]byte, error)) error {

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	cfg := kv.retryConfig()
	attempt := 0

	err := retry.Do(ctx, cfg, func() error {
		attempt++

		var current []byte
		var revision uint64

		entry, err := kv.Get(ctx, key)
		switch {
		case err == nil:
			current = entry.Value
			revision = entry.Revision
		case IsKVNotFoundError(err):
			// Missing key: present updateFn with an empty value and
			// create the key on write.
		default:
			return fmt.Errorf("kv get failed during update: %w", err)
		}

		next, err := updateFn(current)
		if err != nil {
			return retry.NonRetryable(fmt.Errorf("update function error: %w", err))
		}

		if kv.options.MaxValueSize > 0 && len(next) > kv.options.MaxValueSize {
			return retry.NonRetryable(fmt.Errorf("value size %d exceeds maximum %d",
				len(next), kv.options.MaxValueSize))
		}

		if revision == 0 {
			if _, err := kv.bucket.Create(ctx, key, next); err != nil {
				if IsKVConflictError(err) {
					kv.logConflict("create", key, attempt, cfg.MaxAttempts)
					return err
				}
				return fmt.Errorf("kv create failed: %w", err)
			}
			return nil
		}

		if _, err := kv.Update(ctx, key, next, revision); err != nil {
			if IsKVConflictError(err) {
				kv.logConflict("update", key, attempt, cfg.MaxAttempts)
				return err
			}
			return fmt.Errorf("kv update failed: %w", err)
		}
		return nil
	})

	// A conflict surviving the retry loop means the budget ran out.
	if err != nil && IsKVConflictError(err) {
		return ErrKVMaxRetriesExceeded
	}
	return err
}

func (kv *KVStore) logConflict(op, key string, attempt, max int) {
	if kv.logger != nil {
		kv.logger.Debugf("kv %s conflict on %s, attempt %d/%d", op, key, attempt, max)
	}
}

// UpdateJSON runs UpdateWithRetry over a JSON document. updateFn
// mutates the decoded map in place and may run more than once when
// writes race.
func (kv *KVStore) UpdateJSON(ctx context.Context, key string,
	updateFn func(current map[string]any) error) error {

	return kv.UpdateWithRetry(ctx, key, func(currentBytes []byte) ([]byte, error) {
		current := make(map[string]any)
		if len(currentBytes) > 0 {
			if err := json.Unmarshal(currentBytes, &current); err != nil {
				// Corrupt stored data will not get better on retry.
				return nil, retry.NonRetryable(fmt.Errorf("unmarshal current: %w", err))
			}
		}

		if err := updateFn(current); err != nil {
			return nil, err
		}

		return json.Marshal(current)
	})
}

// Keys lists all keys in the bucket. An empty bucket returns an empty
// slice, not an error.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) ||
			strings.Contains(err.Error(), "no keys found") {
			return []string{}, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}

// Delete removes a key. A missing key fails with ErrKVKeyNotFound.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if IsKVNotFoundError(err) {
			return ErrKVKeyNotFound
		}
		return fmt.Errorf("kv delete %s: %w", key, err)
	}

	if kv.logger != nil {
		kv.logger.Debugf("kv delete %s", key)
	}
	return nil
}

// Watch streams changes for keys matching pattern. The configured
// timeout does not apply; the watcher lives until ctx ends or it is
// stopped.
func (kv *KVStore) Watch(ctx context.Context, pattern string) (jetstream.KeyWatcher, error) {
	watcher, err := kv.bucket.Watch(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("kv watch %s: %w", pattern, err)
	}
	return watcher, nil
}

// IsKVNotFoundError reports whether err means the key does not exist,
// matching both this package's sentinel and raw server errors.
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKVKeyNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") ||
		strings.Contains(msg, "10037")
}

// IsKVConflictError reports whether err means a CAS write lost: the
// key already exists or the revision moved underneath the caller.
func IsKVConflictError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKVRevisionMismatch) || errors.Is(err, ErrKVKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}
