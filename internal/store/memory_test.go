package store

import (
	"context"
	"testing"
	"time"

	"order-intake/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_InsertAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id1, err := s.Insert(ctx, &models.Order{ProductName: "Sugar 5kg"})
	require.NoError(t, err)
	id2, err := s.Insert(ctx, &models.Order{ProductName: "Salt 1kg"})
	require.NoError(t, err)

	assert.Equal(t, uint(1), id1)
	assert.Equal(t, uint(2), id2)

	got, err := s.Get(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, "Salt 1kg", got.ProductName)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, _ := s.Insert(ctx, &models.Order{ProductName: "Honey 500g"})

	got, _ := s.Get(ctx, id)
	now := time.Now()
	got.DeletedAt = &now

	again, _ := s.Get(ctx, id)
	assert.Nil(t, again.DeletedAt, "mutating a returned order must not leak into the store")
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindByHash(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateFields(ctx, 42, Patch{ClearDeletedAt: true}), ErrNotFound)
	assert.ErrorIs(t, s.DeleteTrashed(ctx, 42, nil), ErrNotFound)
}

func TestMemoryStore_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, _ := s.Insert(ctx, &models.Order{ProductName: "Rice 10kg"})
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	assert.ErrorIs(t, s.UpdateFields(ctx, id, Patch{ClearDeletedAt: true, Require: StateTrashed}), ErrStateChanged)
	require.NoError(t, s.UpdateFields(ctx, id, Patch{DeletedAt: &now, Require: StateActive}))

	later := now.Add(time.Hour)
	assert.ErrorIs(t, s.UpdateFields(ctx, id, Patch{DeletedAt: &later, Require: StateActive}), ErrStateChanged)
	got, _ := s.Get(ctx, id)
	assert.True(t, got.DeletedAt.Equal(now), "second soft delete must not move deleted_at")
}

func TestMemoryStore_DeleteTrashed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, _ := s.Insert(ctx, &models.Order{ProductName: "Oil 1L"})

	assert.ErrorIs(t, s.DeleteTrashed(ctx, id, nil), ErrStateChanged, "active orders are never deleted")

	deleted := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateFields(ctx, id, Patch{DeletedAt: &deleted}))

	before := deleted.Add(-time.Second)
	assert.ErrorIs(t, s.DeleteTrashed(ctx, id, &before), ErrStateChanged)

	require.NoError(t, s.DeleteTrashed(ctx, id, &deleted))
	_, err := s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ScanFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := s.Insert(ctx, &models.Order{CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	d1 := base.AddDate(0, 0, 1)
	d2 := base.AddDate(0, 0, 2)
	require.NoError(t, s.UpdateFields(ctx, 1, Patch{DeletedAt: &d2}))
	require.NoError(t, s.UpdateFields(ctx, 2, Patch{DeletedAt: &d1}))

	active, err := s.Scan(ctx, Filter{State: StateActive}, SortCreatedDesc)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, uint(4), active[0].ID)
	assert.Equal(t, uint(3), active[1].ID)

	trashed, err := s.Scan(ctx, Filter{State: StateTrashed}, SortDeletedDesc)
	require.NoError(t, err)
	require.Len(t, trashed, 2)
	assert.Equal(t, uint(1), trashed[0].ID)
	assert.Equal(t, uint(2), trashed[1].ID)

	cutoff := d1
	old, err := s.Scan(ctx, Filter{State: StateTrashed, TrashedBy: &cutoff}, SortDeletedDesc)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, uint(2), old[0].ID)
}

func TestMemoryStore_FindByHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	hash := "f00d"
	id, _ := s.Insert(ctx, &models.Order{EmailHash: &hash})
	_, _ = s.Insert(ctx, &models.Order{})

	got, err := s.FindByHash(ctx, "f00d")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestMemoryStore_RecentPurgesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := uint(1); i <= 3; i++ {
		require.NoError(t, s.RecordPurge(ctx, &models.PurgeLog{OrderID: i}))
	}

	logs, err := s.RecentPurges(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, uint(3), logs[0].OrderID)
	assert.Equal(t, uint(2), logs[1].OrderID)
}
