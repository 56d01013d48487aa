package database

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"order-intake/internal/models"
	"order-intake/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderColumnNames = []string{
	"id", "order_number",
	"product_name", "quantity_ordered", "unit", "delivery_due_date",
	"retailer_name", "retailer_email", "retailer_address", "retailer_phone",
	"remarks", "extracted_text", "client_email_subject", "attachment_path",
	"confidence_score", "priority_level", "order_status", "source_of_order", "duplicate_flag", "email_hash",
	"created_at", "processed_at", "deleted_at",
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewDBFromConn(conn), mock
}

func orderRow(id int64, deletedAt driver.Value) []driver.Value {
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, "PO-1",
		"Rice", "10", "kg", "",
		"Acme", "buyer@acme.test", "", "",
		"", "", "Order", nil,
		85.0, "Normal", "Pending", "Email", false, nil,
		created, created, deletedAt,
	}
}

func exactSQL(sql string) string {
	return regexp.QuoteMeta(sql)
}

func TestDB_GetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(exactSQL("FROM purchase_orders WHERE id = $1")).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows(orderColumnNames))

	_, err := db.Get(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDB_GetScansRow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(exactSQL("FROM purchase_orders WHERE id = $1")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(orderColumnNames).AddRow(orderRow(3, nil)...))

	o, err := db.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), o.ID)
	assert.Equal(t, models.StatusPending, o.OrderStatus)
	assert.Equal(t, "", o.AttachmentPath)
	require.NotNil(t, o.ConfidenceScore)
	assert.Equal(t, 85.0, *o.ConfidenceScore)
	assert.True(t, o.IsActive())
}

func TestDB_UpdateFieldsNumbersPlaceholders(t *testing.T) {
	db, mock := newMockDB(t)
	deleted := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	approved := models.StatusApproved

	mock.ExpectExec(exactSQL("UPDATE purchase_orders SET deleted_at = $1, order_status = $2 WHERE id = $3 AND deleted_at IS NULL")).
		WithArgs(deleted, "Approved", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.UpdateFields(context.Background(), 7, store.Patch{
		DeletedAt: &deleted,
		Status:    &approved,
		Require:   store.StateActive,
	})
	assert.NoError(t, err)
}

func TestDB_UpdateFieldsStateChanged(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(exactSQL("UPDATE purchase_orders SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exactSQL("FROM purchase_orders WHERE id = $1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(orderColumnNames).AddRow(orderRow(5, nil)...))

	err := db.UpdateFields(context.Background(), 5, store.Patch{ClearDeletedAt: true, Require: store.StateTrashed})
	assert.ErrorIs(t, err, store.ErrStateChanged)
}

func TestDB_UpdateFieldsEmptyPatchChecksExistence(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(exactSQL("FROM purchase_orders WHERE id = $1")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(orderColumnNames))

	assert.ErrorIs(t, db.UpdateFields(context.Background(), 9, store.Patch{}), store.ErrNotFound)
}

func TestDB_DeleteTrashed(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("with cutoff", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(exactSQL("DELETE FROM purchase_orders WHERE id = $1 AND deleted_at IS NOT NULL AND deleted_at <= $2")).
			WithArgs(3, cutoff).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, db.DeleteTrashed(ctx, 3, &cutoff))
	})

	t.Run("active order is kept", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(exactSQL("DELETE FROM purchase_orders WHERE id = $1 AND deleted_at IS NOT NULL")).
			WithArgs(3).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(exactSQL("FROM purchase_orders WHERE id = $1")).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows(orderColumnNames).AddRow(orderRow(3, nil)...))

		assert.ErrorIs(t, db.DeleteTrashed(ctx, 3, nil), store.ErrStateChanged)
	})

	t.Run("missing id", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(exactSQL("DELETE FROM purchase_orders")).
			WithArgs(4).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(exactSQL("FROM purchase_orders WHERE id = $1")).
			WithArgs(4).
			WillReturnRows(sqlmock.NewRows(orderColumnNames))

		assert.ErrorIs(t, db.DeleteTrashed(ctx, 4, nil), store.ErrNotFound)
	})
}

func TestDB_ScanTrashedBy(t *testing.T) {
	db, mock := newMockDB(t)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	trashed := cutoff.Add(-time.Hour)

	mock.ExpectQuery(exactSQL("FROM purchase_orders WHERE deleted_at IS NOT NULL AND deleted_at <= $1 ORDER BY deleted_at DESC, id DESC")).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows(orderColumnNames).
			AddRow(orderRow(2, trashed)...).
			AddRow(orderRow(1, trashed)...))

	orders, err := db.Scan(context.Background(), store.Filter{State: store.StateTrashed, TrashedBy: &cutoff}, store.SortDeletedDesc)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, uint(2), orders[0].ID)
	require.NotNil(t, orders[1].DeletedAt)
}

func TestDB_ScanActiveEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(exactSQL("FROM purchase_orders WHERE deleted_at IS NULL ORDER BY created_at DESC, id DESC")).
		WillReturnRows(sqlmock.NewRows(orderColumnNames))

	orders, err := db.Scan(context.Background(), store.Filter{State: store.StateActive}, store.SortCreatedDesc)
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestDB_RecentPurgesLimit(t *testing.T) {
	cols := []string{"id", "order_id", "order_number", "product_name", "trashed_at", "purged_at", "reason"}
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	db, mock := newMockDB(t)
	mock.ExpectQuery(exactSQL("ORDER BY purged_at DESC, id DESC LIMIT $1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, 9, "PO-9", "Rice", at, at, models.PurgeReasonExpired))

	logs, err := db.RecentPurges(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint(9), logs[0].OrderID)

	mock.ExpectQuery(exactSQL("ORDER BY purged_at DESC, id DESC")).
		WillReturnRows(sqlmock.NewRows(cols))
	logs, err = db.RecentPurges(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
