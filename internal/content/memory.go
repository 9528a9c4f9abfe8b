package content

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process content store for tests: deterministic
// CIDs derived from a counter, published bytes retrievable by URI.
type MemoryStore struct {
	PublishErr error

	mu        sync.Mutex
	seq       int
	Published map[string][]byte // cid -> data
	Names     map[string]string // cid -> name
	Documents map[string][]byte // uri -> data, for Resolve
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Published: make(map[string][]byte),
		Names:     make(map[string]string),
		Documents: make(map[string][]byte),
	}
}

func (s *MemoryStore) Publish(_ context.Context, data []byte, name string) (string, error) {
	if s.PublishErr != nil {
		return "", s.PublishErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	cid := fmt.Sprintf("bafytest%04d", s.seq)
	s.Published[cid] = append([]byte(nil), data...)
	s.Names[cid] = name
	return cid, nil
}

func (s *MemoryStore) GatewayURL(cid string) string {
	return "memory://" + cid
}

func (s *MemoryStore) Resolve(_ context.Context, uri string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.Documents[uri]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("document not found: %s", uri)
}
