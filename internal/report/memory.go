package report

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process ObjectStore for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores data under path.
func (s *MemoryStore) Put(_ context.Context, path, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[path] = copied
	return nil
}

// SignedURL returns a synthetic link for a stored object.
func (s *MemoryStore) SignedURL(path string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[path]; !ok {
		return "", fmt.Errorf("object %q not found", path)
	}
	return "memory://" + path, nil
}

// Get returns the stored bytes for path, for test assertions.
func (s *MemoryStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, ok
}
