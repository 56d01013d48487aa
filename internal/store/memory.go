package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"order-intake/internal/models"
)

// MemoryStore is an in-process OrderStore used for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint
	orders map[uint]models.Order
	purges []models.PurgeLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, orders: make(map[uint]models.Order)}
}

func (m *MemoryStore) Insert(ctx context.Context, order *models.Order) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order.ID = m.nextID
	m.nextID++
	m.orders[order.ID] = cloneOrder(*order)
	return order.ID, nil
}

func (m *MemoryStore) Get(ctx context.Context, id uint) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (m *MemoryStore) FindByHash(ctx context.Context, hash string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.orders {
		if o.EmailHash != nil && *o.EmailHash == hash {
			out := cloneOrder(o)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Scan(ctx context.Context, filter Filter, s Sort) ([]models.Order, error) {
	m.mu.RLock()
	result := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if matches(o, filter) {
			result = append(result, cloneOrder(o))
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if s == SortDeletedDesc && a.DeletedAt != nil && b.DeletedAt != nil && !a.DeletedAt.Equal(*b.DeletedAt) {
			return a.DeletedAt.After(*b.DeletedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return result, nil
}

func (m *MemoryStore) UpdateFields(ctx context.Context, id uint, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if !patch.Require.Matches(&o) {
		return ErrStateChanged
	}
	if patch.DeletedAt != nil {
		t := *patch.DeletedAt
		o.DeletedAt = &t
	}
	if patch.ClearDeletedAt {
		o.DeletedAt = nil
	}
	if patch.Status != nil {
		o.OrderStatus = *patch.Status
	}
	m.orders[id] = o
	return nil
}

func (m *MemoryStore) DeleteTrashed(ctx context.Context, id uint, trashedBy *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if !matches(o, Filter{State: StateTrashed, TrashedBy: trashedBy}) {
		return ErrStateChanged
	}
	delete(m.orders, id)
	return nil
}

func (m *MemoryStore) RecordPurge(ctx context.Context, entry *models.PurgeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = uint(len(m.purges) + 1)
	m.purges = append(m.purges, *entry)
	return nil
}

func (m *MemoryStore) RecentPurges(ctx context.Context, limit int) ([]models.PurgeLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PurgeLog, 0, len(m.purges))
	for i := len(m.purges) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.purges[i])
	}
	return out, nil
}

func matches(o models.Order, f Filter) bool {
	switch f.State {
	case StateActive:
		return o.DeletedAt == nil
	case StateTrashed:
		if o.DeletedAt == nil {
			return false
		}
		if f.TrashedBy != nil {
			return !o.DeletedAt.After(*f.TrashedBy)
		}
	}
	return true
}

// cloneOrder copies pointer fields so callers never alias stored state
func cloneOrder(o models.Order) models.Order {
	if o.ConfidenceScore != nil {
		v := *o.ConfidenceScore
		o.ConfidenceScore = &v
	}
	if o.EmailHash != nil {
		v := *o.EmailHash
		o.EmailHash = &v
	}
	if o.ProcessedAt != nil {
		v := *o.ProcessedAt
		o.ProcessedAt = &v
	}
	if o.DeletedAt != nil {
		v := *o.DeletedAt
		o.DeletedAt = &v
	}
	return o
}

var (
	_ OrderStore    = (*MemoryStore)(nil)
	_ PurgeRecorder = (*MemoryStore)(nil)
)
