package store

import (
	"context"
	"sync"
)

type memoryEntry struct {
	payload []byte
	version int64
}

// MemoryStore keeps collections in process memory. Nothing survives a
// restart; it backs tests and throwaway demos.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Load(_ context.Context, name string) ([]byte, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, 0, ErrCollectionNotFound
	}
	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, e.version, nil
}

func (s *MemoryStore) Save(_ context.Context, name string, payload []byte, expected int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[name].version != expected {
		return 0, ErrVersionConflict
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.entries[name] = memoryEntry{payload: buf, version: expected + 1}
	return expected + 1, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
