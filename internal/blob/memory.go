package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps objects in process memory. Used in mock mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores content under the given key and returns a mem:// URL.
func (m *MemoryStore) Put(ctx context.Context, key, contentType string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "mem://" + key
	m.objects[url] = append([]byte(nil), content...)
	return url, nil
}

// Fetch returns the content addressed by url.
func (m *MemoryStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.objects[url]
	if !ok {
		return nil, fmt.Errorf("object %q not found", url)
	}
	return append([]byte(nil), content...), nil
}

// Delete removes the object addressed by url.
func (m *MemoryStore) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, url)
	return nil
}
