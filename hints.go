package authsync

import (
	"context"
	"sync"
)

var _ HintStore = &MemoryHints{}

// MemoryHints is a process local HintStore.
type MemoryHints struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryHints returns an empty store.
func NewMemoryHints() *MemoryHints {
	return &MemoryHints{values: map[string]string{}}
}

func (m *MemoryHints) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryHints) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryHints) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
