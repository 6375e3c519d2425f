package storage

import (
	"context"
	"errors"

	"kvsync/internal/version"
)

// ErrUnavailable marks a transient backend failure. Callers treat it as
// retryable: the failing key or operation is skipped for the current cycle
// and picked up again by re-delivery or the next reconciliation tick.
var ErrUnavailable = errors.New("storage unavailable")

// Provenance records which node produced a write and at what logical time.
// It is persisted out-of-band from the payload so a later Get reconstructs
// a comparable version without the original operation message.
type Provenance struct {
	NodeID    string
	Timestamp int64
}

// Entry is the stored state of one key. A tombstoned entry is a recorded
// deletion: it keeps its provenance so replay order can never resurrect
// the key. An entry with no provenance (Origin == "") is an out-of-band
// write that did not pass through any agent.
type Entry struct {
	Value     []byte
	Tombstone bool
	Origin    string
	Timestamp int64
}

// Version reconstructs the comparable version from stored provenance.
func (e *Entry) Version() version.Version {
	return version.Version{
		Timestamp: e.Timestamp,
		NodeID:    e.Origin,
		Tombstone: e.Tombstone,
	}
}

// HasProvenance reports whether the entry was produced by an agent.
func (e *Entry) HasProvenance() bool {
	return e.Origin != ""
}

// Facade abstracts the storage backend. Get returns (nil, nil) for a key
// that was never written, distinguishable from a tombstoned entry which is
// returned present but marked. Keys enumerates every key the backend
// holds, tombstoned ones included.
type Facade interface {
	Put(ctx context.Context, key string, value []byte, prov Provenance) error
	Delete(ctx context.Context, key string, prov Provenance) error
	Get(ctx context.Context, key string) (*Entry, error)
	Keys(ctx context.Context) ([]string, error)
}

// Event is a storage-level change notification. Entry is the state of the
// key after the change; nil means the key was physically removed by
// something bypassing the agent (a raw delete, before any tombstone).
type Event struct {
	Key   string
	Entry *Entry
}

// Watcher yields change events until ctx is cancelled.
type Watcher interface {
	Watch(ctx context.Context) <-chan Event
}
