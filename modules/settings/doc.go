// Package settings implements the versioned persistent key/value capability
// module. Each module instance is bound to one version namespace and one
// backing store, so settings written under v1 are never observable under v2.
//
// Three storage modes are supported:
//
//   - memory: an in-process map, lost on restart. The default, and what
//     tests use.
//   - kv: a NATS JetStream key/value bucket named
//     bridgekit_settings_<namespace>. Writes survive restarts and are
//     visible to every host sharing the bucket.
//   - hybrid: the kv bucket fronted by an LRU read cache. The bucket watcher
//     keeps the cache coherent with remote writes.
//
// Every applied write, local or remote, is emitted as a watchChanges event
// with a {key, value} payload; removals carry a null value.
package settings
