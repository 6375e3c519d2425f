// Package storage provides the key-value facade the sync engine runs
// against. The facade persists write provenance (origin node, logical
// timestamp) beside each value, encodes deletes as tombstones instead of
// removing keys, and reports transient failures as ErrUnavailable so
// callers retry instead of crashing. A Watcher yields storage-level change
// events for the change detector.
package storage
