package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/entity"
)

// MemoryStore is an in-process implementation of the repository interfaces.
// Tests use it to exercise the pipeline without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	orders      map[uuid.UUID]*entity.Order
	attachments map[uuid.UUID][]entity.Attachment
	analyses    map[uuid.UUID][]entity.AnalysisResult
	generations map[uuid.UUID][]entity.GenerationResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[uuid.UUID]*entity.Order),
		attachments: make(map[uuid.UUID][]entity.Attachment),
		analyses:    make(map[uuid.UUID][]entity.AnalysisResult),
		generations: make(map[uuid.UUID][]entity.GenerationResult),
	}
}

var (
	_ OrderRepository      = (*MemoryStore)(nil)
	_ AnalysisRepository   = (*MemoryStore)(nil)
	_ GenerationRepository = memGenerations{}
)

func (m *MemoryStore) Create(_ context.Context, o *entity.Order, atts []entity.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	m.attachments[o.ID] = append([]entity.Attachment(nil), atts...)
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*entity.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ListAttachments(_ context.Context, orderID uuid.UUID) ([]entity.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]entity.Attachment(nil), m.attachments[orderID]...), nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to constants.OrderStatus, completedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, common.ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.CompletedAt = completedAt
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) SetDecision(_ context.Context, id uuid.UUID, score float64, verdict constants.Producibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return common.ErrNotFound
	}
	o.Score = score
	o.Verdict = verdict
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) SetAdminNote(_ context.Context, id uuid.UUID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return common.ErrNotFound
	}
	o.AdminNote = note
	return nil
}

func (m *MemoryStore) AppendBody(_ context.Context, id uuid.UUID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return common.ErrNotFound
	}
	o.Body += "\n\n" + text
	return nil
}

func (m *MemoryStore) IncrementReminders(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return 0, common.ErrNotFound
	}
	o.Reminders++
	return o.Reminders, nil
}

func (m *MemoryStore) ResetReminders(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return common.ErrNotFound
	}
	o.Reminders = 0
	return nil
}

func (m *MemoryStore) List(_ context.Context, from, to *time.Time) ([]entity.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entity.Order
	for _, o := range m.orders {
		if from != nil && o.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && o.CreatedAt.After(*to) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, results []entity.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range results {
		m.analyses[res.OrderID] = append(m.analyses[res.OrderID], res)
	}
	return nil
}

func (m *MemoryStore) ListByOrder(_ context.Context, orderID uuid.UUID) ([]entity.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]entity.AnalysisResult(nil), m.analyses[orderID]...), nil
}

// Generations returns a GenerationRepository view over the same store. Needed
// because Insert and ListByOrder collide with the analysis methods.
func (m *MemoryStore) Generations() GenerationRepository { return memGenerations{m} }

type memGenerations struct{ s *MemoryStore }

func (g memGenerations) Insert(_ context.Context, res *entity.GenerationResult) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	g.s.generations[res.OrderID] = append(g.s.generations[res.OrderID], *res)
	return nil
}

func (g memGenerations) AttachVectors(_ context.Context, attemptID uuid.UUID, svgRef, epsRef, aiRef string) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	for oid, list := range g.s.generations {
		for i := range list {
			if list[i].ID == attemptID {
				list[i].SVGRef = svgRef
				list[i].EPSRef = epsRef
				list[i].AIRef = aiRef
				list[i].Status = constants.GenCompleted
				g.s.generations[oid] = list
				return nil
			}
		}
	}
	return common.ErrNotFound
}

func (g memGenerations) ListByOrder(_ context.Context, orderID uuid.UUID) ([]entity.GenerationResult, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	return append([]entity.GenerationResult(nil), g.s.generations[orderID]...), nil
}

func (g memGenerations) NextAttempt(_ context.Context, orderID uuid.UUID) (int, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	max := 0
	for _, res := range g.s.generations[orderID] {
		if res.Attempt > max {
			max = res.Attempt
		}
	}
	return max + 1, nil
}
