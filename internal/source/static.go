package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/isotools/drawscan/internal/scan"
)

// StaticSource serves documents from an in-process map. Used in development
// mode and tests, where no Drive credentials exist.
type StaticSource struct {
	mu    sync.RWMutex
	items []scan.ItemDescriptor
	docs  map[string][]byte
}

// NewStaticSource constructs an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{docs: make(map[string][]byte)}
}

// AddDocument registers a document under ref.
func (s *StaticSource) AddDocument(ref, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, scan.ItemDescriptor{DocRef: ref, DocName: name})
	copied := make([]byte, len(data))
	copy(copied, data)
	s.docs[ref] = copied
}

// EnumerateItems returns every registered document regardless of sourceRef.
func (s *StaticSource) EnumerateItems(_ context.Context, _ string) ([]scan.ItemDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scan.ItemDescriptor, len(s.items))
	copy(out, s.items)
	return out, nil
}

// FetchDocument returns the registered bytes for docRef.
func (s *StaticSource) FetchDocument(_ context.Context, docRef string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[docRef]
	if !ok {
		return nil, fmt.Errorf("document %q not found", docRef)
	}
	return data, nil
}
