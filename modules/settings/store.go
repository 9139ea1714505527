package settings

import (
	"context"
	"sync"

	"github.com/c360/bridgekit/value"
)

// changeFunc receives one applied write. A null value means the key was
// removed.
type changeFunc func(key string, val value.Value)

// store is the persistence boundary behind the module. Implementations must
// be safe for concurrent use by dispatcher workers and must invoke the
// bound changeFunc once per applied write.
type store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (value.Value, bool, error)

	// GetAll returns a snapshot of every stored entry.
	GetAll(ctx context.Context) (map[string]value.Value, error)

	// Set writes one entry.
	Set(ctx context.Context, key string, val value.Value) error

	// SetBatch writes every entry or none. Entries are pre-validated by the
	// module; implementations only fail on storage errors.
	SetBatch(ctx context.Context, entries map[string]value.Value) error

	// Remove deletes one entry. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error

	// Close releases store resources.
	Close() error
}

// memoryStore keeps settings in a process-local map. Batch writes apply
// under one lock, so readers never observe a half-applied batch.
type memoryStore struct {
	mu       sync.RWMutex
	entries  map[string]value.Value
	onChange changeFunc
}

func newMemoryStore(onChange changeFunc) *memoryStore {
	return &memoryStore{
		entries:  make(map[string]value.Value),
		onChange: onChange,
	}
}

func (s *memoryStore) Get(_ context.Context, key string) (value.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.entries[key]
	if !ok {
		return value.Null(), false, nil
	}
	return val, true, nil
}

func (s *memoryStore) GetAll(_ context.Context) (map[string]value.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]value.Value, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	return snapshot, nil
}

func (s *memoryStore) Set(_ context.Context, key string, val value.Value) error {
	s.mu.Lock()
	s.entries[key] = val
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(key, val)
	}
	return nil
}

func (s *memoryStore) SetBatch(_ context.Context, entries map[string]value.Value) error {
	s.mu.Lock()
	for k, v := range entries {
		s.entries[k] = v
	}
	s.mu.Unlock()

	if s.onChange != nil {
		for k, v := range entries {
			s.onChange(k, v)
		}
	}
	return nil
}

func (s *memoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	_, existed := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()

	if existed && s.onChange != nil {
		s.onChange(key, value.Null())
	}
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
