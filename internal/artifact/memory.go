package artifact

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps artifacts in a map. Test support.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory returns an in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Save records the artifact under its name.
func (m *Memory) Save(_ context.Context, name string, data []byte) (string, error) {
	if name == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = append([]byte(nil), data...)
	return "mem://" + name, nil
}

// Get returns a stored artifact and whether it exists.
func (m *Memory) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[name]
	return data, ok
}

// Len reports how many artifacts were saved.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

var _ Store = (*Memory)(nil)
