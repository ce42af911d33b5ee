package blob

import (
	"context"
	"sync"
)

// MemoryProvider keeps exports in memory. Used in tests and local runs.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string][]byte)}
}

// Save stores a copy of the data under the object name.
func (m *MemoryProvider) Save(_ context.Context, objectName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[objectName] = append([]byte(nil), data...)
	return nil
}

// Get returns a stored object and whether it exists.
func (m *MemoryProvider) Get(objectName string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[objectName]
	return data, ok
}
