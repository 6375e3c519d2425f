package version

import "sync"

// storeKey is the conflict domain: updates to distinct (bucket, key) pairs
// are independent.
type storeKey struct {
	bucket string
	key    string
}

type storeEntry struct {
	mu      sync.Mutex
	current Version
}

// Store maps (bucket, key) to the highest-ranked Version this node has
// accepted for that key. It is advisory cache state, not the source of
// truth for values: its job is to prevent re-applying or re-broadcasting
// operations that cannot win. Safe for concurrent use; each key carries
// its own lock.
type Store struct {
	mu      sync.RWMutex
	entries map[storeKey]*storeEntry
}

// NewStore creates an empty version store.
func NewStore() *Store {
	return &Store{entries: make(map[storeKey]*storeEntry)}
}

// Get returns the accepted Version for (bucket, key) and whether one
// exists. An absent entry ranks lowest.
func (s *Store) Get(bucket, key string) (Version, bool) {
	s.mu.RLock()
	e, ok := s.entries[storeKey{bucket, key}]
	s.mu.RUnlock()
	if !ok {
		return Zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current.IsZero() {
		return Zero, false
	}
	return e.current, true
}

// Commit atomically compares candidate against the incumbent for
// (bucket, key) and, if the candidate wins, runs apply and installs the
// candidate. The entry stays locked across the whole read-modify-write, so
// a race between two concurrent winners for the same key can never leave
// the store pointing at the loser.
//
// Returns false if the candidate does not outrank the incumbent. If apply
// returns an error the candidate is not installed and the error is
// returned; the caller retries on a later delivery or reconcile cycle.
// A nil apply commits the version only.
func (s *Store) Commit(bucket, key string, candidate Version, apply func() error) (bool, error) {
	e := s.entry(bucket, key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.current.IsZero() && !Wins(candidate, e.current) {
		return false, nil
	}
	if apply != nil {
		if err := apply(); err != nil {
			return false, err
		}
	}
	e.current = candidate
	return true, nil
}

func (s *Store) entry(bucket, key string) *storeEntry {
	k := storeKey{bucket, key}

	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[k]; ok {
		return e
	}
	e = &storeEntry{}
	s.entries[k] = e
	return e
}
