package dedup

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/internal/common"
)

// Memory is an in-process Deduplicator for tests and local mode.
type Memory struct {
	mu       sync.Mutex
	messages map[string]uuid.UUID
	threads  map[string]uuid.UUID
}

func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string]uuid.UUID),
		threads:  make(map[string]uuid.UUID),
	}
}

func (m *Memory) ResolveOrCreate(_ context.Context, messageID, threadID string, newOrderID uuid.UUID) (Resolution, error) {
	if messageID == "" || threadID == "" {
		return Resolution{}, common.ErrValidation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.messages[messageID]; ok {
		return Resolution{OrderID: id, Duplicate: true}, nil
	}
	if id, ok := m.threads[threadID]; ok {
		m.messages[messageID] = id
		return Resolution{OrderID: id, Reply: true}, nil
	}
	m.messages[messageID] = newOrderID
	m.threads[threadID] = newOrderID
	return Resolution{OrderID: newOrderID}, nil
}

func (m *Memory) ByThread(_ context.Context, threadID string) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.threads[threadID]
	return id, ok, nil
}
