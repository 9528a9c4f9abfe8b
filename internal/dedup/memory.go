package dedup

import (
	"context"
	"sync"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// MemoryIndex is an in-process Index for tests and single-node dev runs.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]string)}
}

func (i *MemoryIndex) Put(_ context.Context, did, jobID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.entries[did]; exists {
		return domain.ErrDuplicate
	}
	i.entries[did] = jobID
	return nil
}

func (i *MemoryIndex) Get(_ context.Context, did string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	jobID, ok := i.entries[did]
	if !ok {
		return "", domain.ErrRequestNotFound
	}
	return jobID, nil
}

func (i *MemoryIndex) Delete(_ context.Context, did string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, did)
	return nil
}

func (i *MemoryIndex) Reset(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = make(map[string]string)
	return nil
}
