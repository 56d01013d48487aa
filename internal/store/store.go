// Package store defines the persistence contract for purchase orders.
package store

import (
	"context"
	"errors"
	"time"

	"order-intake/internal/models"
)

// ErrNotFound is returned when no order matches the requested id or hash.
var ErrNotFound = errors.New("order not found")

// ErrStateChanged is returned when a conditional update or delete finds the
// order outside the required lifecycle state.
var ErrStateChanged = errors.New("order not in required state")

// State selects orders by lifecycle state
type State int

const (
	StateAny State = iota
	StateActive
	StateTrashed
)

// Matches reports whether o is in state s
func (s State) Matches(o *models.Order) bool {
	switch s {
	case StateActive:
		return o.DeletedAt == nil
	case StateTrashed:
		return o.DeletedAt != nil
	}
	return true
}

// Sort orders a scan result
type Sort int

const (
	SortCreatedDesc Sort = iota
	SortDeletedDesc
)

// Filter narrows a Scan. Zero value matches every order.
type Filter struct {
	State State
	// TrashedBy matches trashed orders whose deleted_at is at or before
	// this moment. Only meaningful with StateTrashed.
	TrashedBy *time.Time
}

// Patch is a partial update applied to a single order. With Require set,
// the update only applies while the order is in that state.
type Patch struct {
	DeletedAt      *time.Time
	ClearDeletedAt bool
	Status         *models.OrderStatus
	Require        State
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.DeletedAt == nil && !p.ClearDeletedAt && p.Status == nil
}

// OrderStore is durable keyed storage of orders. Implementations provide
// per-record atomic updates; no cross-record transactions are assumed.
type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) (uint, error)
	Get(ctx context.Context, id uint) (*models.Order, error)
	FindByHash(ctx context.Context, hash string) (*models.Order, error)
	Scan(ctx context.Context, filter Filter, sort Sort) ([]models.Order, error)
	UpdateFields(ctx context.Context, id uint, patch Patch) error
	// DeleteTrashed removes the order only while it is trashed and, when
	// trashedBy is set, only if deleted_at is at or before it. Returns
	// ErrNotFound for a missing id and ErrStateChanged otherwise.
	DeleteTrashed(ctx context.Context, id uint, trashedBy *time.Time) error
}

// PurgeRecorder is implemented by stores that keep a purge history.
type PurgeRecorder interface {
	RecordPurge(ctx context.Context, entry *models.PurgeLog) error
	RecentPurges(ctx context.Context, limit int) ([]models.PurgeLog, error)
}
