package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Facade with built-in change notification.
// It is thread-safe. PutRaw and DeleteRaw simulate out-of-band edits that
// bypass the agent (no provenance), which is how tests exercise the
// change-detector classification.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]*Entry
	events chan Event
	forced error
}

// NewMemoryStore creates an empty store. The event buffer absorbs bursts;
// a notification dropped under sustained overload is repaired by the next
// reconciliation pass.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]*Entry),
		events: make(chan Event, 1024),
	}
}

// Fail forces every subsequent call to return err until reset with nil.
// Test hook for the retryable-failure paths.
func (s *MemoryStore) Fail(err error) {
	s.mu.Lock()
	s.forced = err
	s.mu.Unlock()
}

// Put stores value under key with the given provenance.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, prov Provenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forced != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, s.forced)
	}

	e := &Entry{
		Value:     append([]byte(nil), value...),
		Origin:    prov.NodeID,
		Timestamp: prov.Timestamp,
	}
	s.data[key] = e
	s.emit(Event{Key: key, Entry: copyEntry(e)})
	return nil
}

// Delete records a tombstone for key carrying the given provenance. The
// key is never physically removed.
func (s *MemoryStore) Delete(ctx context.Context, key string, prov Provenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forced != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, s.forced)
	}

	e := &Entry{
		Tombstone: true,
		Origin:    prov.NodeID,
		Timestamp: prov.Timestamp,
	}
	s.data[key] = e
	s.emit(Event{Key: key, Entry: copyEntry(e)})
	return nil
}

// Get returns a copy of the stored entry, or (nil, nil) if the key was
// never written.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.forced != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, s.forced)
	}

	e, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return copyEntry(e), nil
}

// Keys lists every stored key, tombstoned ones included.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.forced != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, s.forced)
	}

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// PutRaw writes a value with no provenance, emulating a manual client or
// CLI edit that bypassed the agent's helpers.
func (s *MemoryStore) PutRaw(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &Entry{Value: append([]byte(nil), value...)}
	s.data[key] = e
	s.emit(Event{Key: key, Entry: copyEntry(e)})
}

// DeleteRaw physically removes a key with no tombstone, emulating an
// out-of-band deletion.
func (s *MemoryStore) DeleteRaw(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	s.emit(Event{Key: key, Entry: nil})
}

// Watch returns the change event stream. The channel is owned by the
// store and stays open for its lifetime; consumers stop via ctx.
func (s *MemoryStore) Watch(ctx context.Context) <-chan Event {
	return s.events
}

func (s *MemoryStore) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// Buffer full. The reconciler repairs anything the watcher missed.
	}
}

func copyEntry(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Value = append([]byte(nil), e.Value...)
	return &cp
}
