package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-intake/internal/models"
	"order-intake/internal/store"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB is the MySQL-backed OrderStore
type GormDB struct {
	db *gorm.DB
}

func NewGormDB(host, port, user, password, dbname string) (*GormDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, password, host, port, dbname)

	gdb, err := OpenGorm(mysql.Open(dsn), logger.Warn)
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return gdb, nil
}

// OpenGorm opens a GormDB over any dialector
func OpenGorm(dialector gorm.Dialector, level logger.LogLevel) (*GormDB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}
	return &GormDB{db: db}, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Order{},
		&models.PurgeLog{},
	)
}

func (gdb *GormDB) Insert(ctx context.Context, order *models.Order) (uint, error) {
	if err := gdb.db.WithContext(ctx).Create(order).Error; err != nil {
		return 0, err
	}
	return order.ID, nil
}

func (gdb *GormDB) Get(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := gdb.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (gdb *GormDB) FindByHash(ctx context.Context, hash string) (*models.Order, error) {
	var order models.Order
	err := gdb.db.WithContext(ctx).Where("email_hash = ?", hash).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (gdb *GormDB) Scan(ctx context.Context, filter store.Filter, sort store.Sort) ([]models.Order, error) {
	q := gdb.db.WithContext(ctx).Model(&models.Order{})

	switch filter.State {
	case store.StateActive:
		q = q.Where("deleted_at IS NULL")
	case store.StateTrashed:
		q = q.Where("deleted_at IS NOT NULL")
		if filter.TrashedBy != nil {
			q = q.Where("deleted_at <= ?", *filter.TrashedBy)
		}
	}

	if sort == store.SortDeletedDesc {
		q = q.Order("deleted_at DESC").Order("id DESC")
	} else {
		q = q.Order("created_at DESC").Order("id DESC")
	}

	orders := []models.Order{}
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (gdb *GormDB) UpdateFields(ctx context.Context, id uint, patch store.Patch) error {
	if patch.Empty() {
		_, err := gdb.Get(ctx, id)
		return err
	}

	updates := map[string]interface{}{}
	if patch.DeletedAt != nil {
		updates["deleted_at"] = *patch.DeletedAt
	}
	if patch.ClearDeletedAt {
		updates["deleted_at"] = nil
	}
	if patch.Status != nil {
		updates["order_status"] = string(*patch.Status)
	}

	q := gdb.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id)
	q = whereState(q, patch.Require)
	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero rows for an update that changes nothing
	return gdb.explainMiss(ctx, id, patch.Require)
}

func (gdb *GormDB) DeleteTrashed(ctx context.Context, id uint, trashedBy *time.Time) error {
	q := gdb.db.WithContext(ctx).Where("id = ? AND deleted_at IS NOT NULL", id)
	if trashedBy != nil {
		q = q.Where("deleted_at <= ?", *trashedBy)
	}
	res := q.Delete(&models.Order{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := gdb.Get(ctx, id); err != nil {
		return err
	}
	return store.ErrStateChanged
}

func whereState(q *gorm.DB, s store.State) *gorm.DB {
	switch s {
	case store.StateActive:
		return q.Where("deleted_at IS NULL")
	case store.StateTrashed:
		return q.Where("deleted_at IS NOT NULL")
	}
	return q
}

// explainMiss turns a zero-row conditional write into ErrNotFound,
// ErrStateChanged or success.
func (gdb *GormDB) explainMiss(ctx context.Context, id uint, want store.State) error {
	o, err := gdb.Get(ctx, id)
	if err != nil {
		return err
	}
	if !want.Matches(o) {
		return store.ErrStateChanged
	}
	return nil
}

func (gdb *GormDB) RecordPurge(ctx context.Context, entry *models.PurgeLog) error {
	return gdb.db.WithContext(ctx).Create(entry).Error
}

func (gdb *GormDB) RecentPurges(ctx context.Context, limit int) ([]models.PurgeLog, error) {
	if limit <= 0 {
		limit = -1
	}
	logs := []models.PurgeLog{}
	err := gdb.db.WithContext(ctx).Order("purged_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

var (
	_ store.OrderStore    = (*GormDB)(nil)
	_ store.PurgeRecorder = (*GormDB)(nil)
)
