package lifecycle

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex hands out one mutex per order id. Entries are refcounted and
// removed when the last holder unlocks, so the map does not grow with order
// volume.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id uuid.UUID) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[uuid.UUID]*lockEntry)
	}
	e, ok := k.entries[id]
	if !ok {
		e = &lockEntry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, id)
		}
		k.mu.Unlock()
	}
}
