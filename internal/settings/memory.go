package settings

import (
	"context"
	"maps"
	"sync"
)

// MemoryBackend keeps settings in process memory.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string

	// SaveErr, when set, is returned by SaveAll.
	SaveErr error
}

func NewMemoryBackend(initial map[string]string) *MemoryBackend {
	values := maps.Clone(initial)
	if values == nil {
		values = make(map[string]string)
	}
	return &MemoryBackend{values: values}
}

func (m *MemoryBackend) LoadAll(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.values), nil
}

func (m *MemoryBackend) SaveAll(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.values = maps.Clone(values)
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
