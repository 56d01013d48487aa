package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-intake/internal/models"
	"order-intake/internal/store"

	_ "github.com/lib/pq"
)

// DB is the PostgreSQL-backed OrderStore, written against database/sql
type DB struct {
	conn *sql.DB
}

func NewDB(host, port, user, password, dbname, sslmode string) (*DB, error) {
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// NewDBFromConn wraps an already opened connection pool
func NewDBFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the purchase_orders and purge_logs tables if they don't exist
func (db *DB) InitSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS purchase_orders (
		id SERIAL PRIMARY KEY,
		order_number VARCHAR(64),

		product_name TEXT,
		quantity_ordered VARCHAR(64),
		unit VARCHAR(32),
		delivery_due_date VARCHAR(32),
		retailer_name TEXT,
		retailer_email VARCHAR(255),
		retailer_address TEXT,
		retailer_phone VARCHAR(64),
		remarks TEXT,
		extracted_text TEXT,
		client_email_subject TEXT,
		attachment_path TEXT,

		confidence_score DOUBLE PRECISION,
		priority_level VARCHAR(16) NOT NULL DEFAULT 'Normal',
		order_status VARCHAR(32) NOT NULL DEFAULT 'Pending',
		source_of_order VARCHAR(16) NOT NULL DEFAULT 'Email',
		duplicate_flag BOOLEAN NOT NULL DEFAULT FALSE,
		email_hash VARCHAR(64) UNIQUE,

		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMP,
		deleted_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_purchase_orders_created_at ON purchase_orders(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_purchase_orders_deleted_at ON purchase_orders(deleted_at);

	CREATE TABLE IF NOT EXISTS purge_logs (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL,
		order_number VARCHAR(64),
		product_name TEXT,
		trashed_at TIMESTAMP,
		purged_at TIMESTAMP NOT NULL,
		reason VARCHAR(32) NOT NULL
	);
	`
	_, err := db.conn.Exec(query)
	return err
}

const orderColumns = `id, order_number,
	product_name, quantity_ordered, unit, delivery_due_date,
	retailer_name, retailer_email, retailer_address, retailer_phone,
	remarks, extracted_text, client_email_subject, attachment_path,
	confidence_score, priority_level, order_status, source_of_order, duplicate_flag, email_hash,
	created_at, processed_at, deleted_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var attachment sql.NullString
	err := row.Scan(
		&o.ID, &o.OrderNumber,
		&o.ProductName, &o.QuantityOrdered, &o.Unit, &o.DeliveryDueDate,
		&o.RetailerName, &o.RetailerEmail, &o.RetailerAddress, &o.RetailerPhone,
		&o.Remarks, &o.ExtractedText, &o.ClientEmailSubject, &attachment,
		&o.ConfidenceScore, &o.PriorityLevel, &o.OrderStatus, &o.SourceOfOrder, &o.DuplicateFlag, &o.EmailHash,
		&o.CreatedAt, &o.ProcessedAt, &o.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	o.AttachmentPath = attachment.String
	return &o, nil
}

func (db *DB) Insert(ctx context.Context, o *models.Order) (uint, error) {
	query := `
	INSERT INTO purchase_orders (
		order_number,
		product_name, quantity_ordered, unit, delivery_due_date,
		retailer_name, retailer_email, retailer_address, retailer_phone,
		remarks, extracted_text, client_email_subject, attachment_path,
		confidence_score, priority_level, order_status, source_of_order, duplicate_flag, email_hash,
		created_at, processed_at, deleted_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	RETURNING id
	`
	var id uint
	err := db.conn.QueryRowContext(ctx, query,
		o.OrderNumber,
		o.ProductName, o.QuantityOrdered, o.Unit, o.DeliveryDueDate,
		o.RetailerName, o.RetailerEmail, o.RetailerAddress, o.RetailerPhone,
		o.Remarks, o.ExtractedText, o.ClientEmailSubject, o.AttachmentPath,
		o.ConfidenceScore, o.PriorityLevel, o.OrderStatus, o.SourceOfOrder, o.DuplicateFlag, o.EmailHash,
		o.CreatedAt, o.ProcessedAt, o.DeletedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

func (db *DB) Get(ctx context.Context, id uint) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = $1`
	o, err := scanOrder(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return o, err
}

func (db *DB) FindByHash(ctx context.Context, hash string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE email_hash = $1`
	o, err := scanOrder(db.conn.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return o, err
}

func (db *DB) Scan(ctx context.Context, filter store.Filter, sort store.Sort) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders`
	var args []interface{}

	switch filter.State {
	case store.StateActive:
		query += ` WHERE deleted_at IS NULL`
	case store.StateTrashed:
		query += ` WHERE deleted_at IS NOT NULL`
		if filter.TrashedBy != nil {
			args = append(args, *filter.TrashedBy)
			query += ` AND deleted_at <= $1`
		}
	}

	if sort == store.SortDeletedDesc {
		query += ` ORDER BY deleted_at DESC, id DESC`
	} else {
		query += ` ORDER BY created_at DESC, id DESC`
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (db *DB) UpdateFields(ctx context.Context, id uint, patch store.Patch) error {
	var sets []string
	var args []interface{}

	if patch.DeletedAt != nil {
		args = append(args, *patch.DeletedAt)
		sets = append(sets, fmt.Sprintf("deleted_at = $%d", len(args)))
	}
	if patch.ClearDeletedAt {
		sets = append(sets, "deleted_at = NULL")
	}
	if patch.Status != nil {
		args = append(args, string(*patch.Status))
		sets = append(sets, fmt.Sprintf("order_status = $%d", len(args)))
	}
	if len(sets) == 0 {
		_, err := db.Get(ctx, id)
		return err
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE purchase_orders SET %s WHERE id = $%d%s",
		strings.Join(sets, ", "), len(args), stateClause(patch.Require))
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return db.requireRow(ctx, res, id)
}

func (db *DB) DeleteTrashed(ctx context.Context, id uint, trashedBy *time.Time) error {
	query := `DELETE FROM purchase_orders WHERE id = $1 AND deleted_at IS NOT NULL`
	args := []interface{}{id}
	if trashedBy != nil {
		args = append(args, *trashedBy)
		query += ` AND deleted_at <= $2`
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return db.requireRow(ctx, res, id)
}

func stateClause(s store.State) string {
	switch s {
	case store.StateActive:
		return " AND deleted_at IS NULL"
	case store.StateTrashed:
		return " AND deleted_at IS NOT NULL"
	}
	return ""
}

func (db *DB) RecordPurge(ctx context.Context, entry *models.PurgeLog) error {
	query := `
	INSERT INTO purge_logs (order_id, order_number, product_name, trashed_at, purged_at, reason)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id
	`
	return db.conn.QueryRowContext(ctx, query,
		entry.OrderID, entry.OrderNumber, entry.ProductName, entry.TrashedAt, entry.PurgedAt, entry.Reason,
	).Scan(&entry.ID)
}

func (db *DB) RecentPurges(ctx context.Context, limit int) ([]models.PurgeLog, error) {
	query := `
		SELECT id, order_id, order_number, product_name, trashed_at, purged_at, reason
		FROM purge_logs
		ORDER BY purged_at DESC, id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.PurgeLog{}
	for rows.Next() {
		var l models.PurgeLog
		if err := rows.Scan(&l.ID, &l.OrderID, &l.OrderNumber, &l.ProductName, &l.TrashedAt, &l.PurgedAt, &l.Reason); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// requireRow maps a zero-row UPDATE/DELETE to store.ErrNotFound when the id
// is gone and to store.ErrStateChanged when a state condition filtered it out
func (db *DB) requireRow(ctx context.Context, res sql.Result, id uint) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Get(ctx, id); err != nil {
		return err
	}
	return store.ErrStateChanged
}

var (
	_ store.OrderStore    = (*DB)(nil)
	_ store.PurgeRecorder = (*DB)(nil)
)
