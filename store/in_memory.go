package store

import (
	"sync"

	"github.com/hupe1980/swarmcoord/core"
)

// InMemoryStore is a trivial in-process KVStore implementation useful for
// tests, examples and single-process swarms. It keeps all values in a map
// guarded by an RWMutex. Data is copied on set / retrieval to avoid
// accidental external mutation of internal buffers.
//
// This implementation is intentionally minimal; it does not enforce
// retention limits or eviction. For production, prefer a durable backend
// that survives process restarts.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// Compile-time contract check.
var _ core.KVStore = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty in-memory key/value store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[string][]byte)}
}

// Get returns a copy of the stored bytes or ErrNotFound.
func (s *InMemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Set stores (or overwrites) the value for the given key. The input slice is
// copied before storage.
func (s *InMemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[key] = cp
	return nil
}

// Delete removes the key. Deleting an absent key is a no-op.
func (s *InMemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Keys returns every stored key, useful for tests and diagnostics.
func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}
