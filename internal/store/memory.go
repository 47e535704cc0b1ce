package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]string
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrUnavailable
	}
	v, ok := m.values[key]
	return slices.Clone(v), ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	if values == nil {
		values = []string{}
	}
	m.values[key] = slices.Clone(values)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	delete(m.values, key)
	return nil
}

// Close makes every later operation fail with ErrUnavailable.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
