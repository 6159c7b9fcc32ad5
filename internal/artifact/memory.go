package artifact

import (
	"context"
	"sync"

	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
)

// Memory keeps artifacts in a map. Used by tests and by local mode, where
// standing up an object store is not worth it.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory { return &Memory{data: make(map[string][]byte)} }

var _ collab.ArtifactStore = (*Memory)(nil)

func (m *Memory) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[key] = cp
	return key, nil
}

func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[ref]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := make([]byte, len(d))
	copy(cp, d)
	return cp, nil
}

// Len reports stored object count, for test assertions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
