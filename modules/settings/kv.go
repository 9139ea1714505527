package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/pkg/cache"
	"github.com/c360/bridgekit/pkg/retry"
	"github.com/c360/bridgekit/value"
)

// kvStore persists settings in a JetStream KV bucket, optionally fronted by
// an LRU read cache (hybrid mode). Change events come from the bucket
// watcher, so local and remote writes surface through one path and the
// cache stays coherent with writers on other hosts.
type kvStore struct {
	kv       *natsclient.KVStore
	cache    cache.Cache[value.Value]
	retryCfg retry.Config
	onChange changeFunc
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newKVStore(kv *natsclient.KVStore, readCache cache.Cache[value.Value],
	retryCfg retry.Config, onChange changeFunc, logger *slog.Logger) *kvStore {
	return &kvStore{
		kv:       kv,
		cache:    readCache,
		retryCfg: retryCfg,
		onChange: onChange,
		logger:   logger,
	}
}

// start launches the bucket watcher. The watcher replays nothing: entries
// before the initial-values marker are used only to warm the cache.
func (s *kvStore) start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)

	watcher, err := s.kv.Watch(watchCtx, ">")
	if err != nil {
		cancel()
		return errors.WrapTransient(err, "Settings", "start", "watch bucket")
	}
	s.cancel = cancel

	s.wg.Add(1)
	go s.watch(watchCtx, watcher)
	return nil
}

func (s *kvStore) watch(ctx context.Context, watcher jetstream.KeyWatcher) {
	defer s.wg.Done()
	defer func() {
		if err := watcher.Stop(); err != nil {
			s.logger.Debug("settings watcher stop failed", "error", err)
		}
	}()

	replaying := true
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				return
			}
			// A nil entry marks the end of the initial replay.
			if entry == nil {
				replaying = false
				continue
			}
			s.applyUpdate(entry, replaying)
		}
	}
}

// applyUpdate folds one watcher entry into the cache and, past the initial
// replay, emits it as a change.
func (s *kvStore) applyUpdate(entry jetstream.KeyValueEntry, replaying bool) {
	key := entry.Key()

	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		if _, err := s.cache.Delete(key); err != nil {
			s.logger.Debug("settings cache delete failed", "key", key, "error", err)
		}
		if !replaying && s.onChange != nil {
			s.onChange(key, value.Null())
		}
	default:
		val, err := decodeValue(entry.Value())
		if err != nil {
			s.logger.Warn("undecodable settings entry ignored", "key", key, "error", err)
			return
		}
		if _, err := s.cache.Set(key, val); err != nil {
			s.logger.Debug("settings cache set failed", "key", key, "error", err)
		}
		if !replaying && s.onChange != nil {
			s.onChange(key, val)
		}
	}
}

func (s *kvStore) Get(ctx context.Context, key string) (value.Value, bool, error) {
	if val, ok := s.cache.Get(key); ok {
		return val, true, nil
	}

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return value.Null(), false, nil
		}
		return value.Null(), false, errors.WrapTransient(err, "Settings", "Get", "read "+key)
	}

	val, err := decodeValue(entry.Value)
	if err != nil {
		return value.Null(), false, err
	}
	if _, err := s.cache.Set(key, val); err != nil {
		s.logger.Debug("settings cache set failed", "key", key, "error", err)
	}
	return val, true, nil
}

func (s *kvStore) GetAll(ctx context.Context) (map[string]value.Value, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "Settings", "GetAll", "list keys")
	}

	snapshot := make(map[string]value.Value, len(keys))
	for _, key := range keys {
		val, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			snapshot[key] = val
		}
	}
	return snapshot, nil
}

func (s *kvStore) Set(ctx context.Context, key string, val value.Value) error {
	data, err := json.Marshal(val)
	if err != nil {
		return errors.WrapKind(errors.KindTypeMismatch, err, "Settings", "Set", "encode "+key)
	}

	err = retry.Do(ctx, s.retryCfg, func() error {
		_, putErr := s.kv.Put(ctx, key, data)
		return putErr
	})
	if err != nil {
		return errors.WrapTransient(err, "Settings", "Set", "write "+key)
	}

	// Read-your-writes: the watcher will confirm this shortly, but readers
	// on this host should not race it.
	if _, err := s.cache.Set(key, val); err != nil {
		s.logger.Debug("settings cache set failed", "key", key, "error", err)
	}
	return nil
}

func (s *kvStore) SetBatch(ctx context.Context, entries map[string]value.Value) error {
	for key, val := range entries {
		if err := s.Set(ctx, key, val); err != nil {
			return err
		}
	}
	return nil
}

func (s *kvStore) Remove(ctx context.Context, key string) error {
	err := retry.Do(ctx, s.retryCfg, func() error {
		delErr := s.kv.Delete(ctx, key)
		if natsclient.IsKVNotFoundError(delErr) {
			return nil
		}
		return delErr
	})
	if err != nil {
		return errors.WrapTransient(err, "Settings", "Remove", "delete "+key)
	}
	if _, err := s.cache.Delete(key); err != nil {
		s.logger.Debug("settings cache delete failed", "key", key, "error", err)
	}
	return nil
}

func (s *kvStore) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.cache.Close()
}

func decodeValue(data []byte) (value.Value, error) {
	var val value.Value
	if err := json.Unmarshal(data, &val); err != nil {
		return value.Null(), errors.WrapKind(errors.KindTypeMismatch, err,
			"Settings", "decode", "stored value")
	}
	return val, nil
}
