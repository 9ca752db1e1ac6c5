package session

import (
	"context"
	"sync"
)

// Persister is a durable home for transform state blobs outside process
// memory. Reclaim has take semantics: it returns the blob and removes it
// in one step, and returns (nil, nil) when nothing is stored under id.
type Persister interface {
	Persist(ctx context.Context, id string, blob []byte) error
	Reclaim(ctx context.Context, id string) ([]byte, error)
}

// NopPersister stores nothing. It is used when no durable store is
// configured or reachable.
type NopPersister struct{}

// Persist discards the blob.
func (NopPersister) Persist(context.Context, string, []byte) error { return nil }

// Reclaim always reports that nothing is stored.
func (NopPersister) Reclaim(context.Context, string) ([]byte, error) { return nil, nil }

// MemoryPersister keeps blobs in a map. It is useful for tests and for
// exercising the persist/reclaim cycle without an external store.
type MemoryPersister struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryPersister creates an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{blobs: make(map[string][]byte)}
}

// Persist stores a copy of blob under id.
func (m *MemoryPersister) Persist(_ context.Context, id string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id] = append([]byte(nil), blob...)
	return nil
}

// Reclaim returns and removes the blob stored under id.
func (m *MemoryPersister) Reclaim(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[id]
	if !ok {
		return nil, nil
	}
	delete(m.blobs, id)
	return blob, nil
}

// Len returns the number of stored blobs.
func (m *MemoryPersister) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
