package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps documents in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, resource string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[resource]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Save(_ context.Context, resource string, data []byte) error {
	if err := ValidateResource(resource); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[resource] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, resource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[resource]; !ok {
		return ErrNotFound
	}
	delete(s.docs, resource)
	return nil
}

func (s *MemoryStore) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]string, 0, len(s.docs))
	for r := range s.docs {
		result = append(result, r)
	}
	sort.Strings(result)
	return result, nil
}

func (s *MemoryStore) Close() error { return nil }
