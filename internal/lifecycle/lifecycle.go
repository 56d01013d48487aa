// Package lifecycle moves orders between active, trashed and purged.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-intake/internal/logging"
	"order-intake/internal/models"
	"order-intake/internal/store"
)

// SearchRemover drops purged orders from a secondary index
type SearchRemover interface {
	RemoveOrders(ids []uint) error
}

// Indexer receives recreated orders
type Indexer interface {
	IndexOrder(order *models.Order) error
}

// Config holds lifecycle settings
type Config struct {
	RetentionDays int // defaults to models.TrashRetentionDays
	Now           func() time.Time
}

// TrashEntry is a trashed order with its remaining recovery window
type TrashEntry struct {
	models.Order
	DaysRemaining int `json:"days_remaining"`
}

// Manager applies soft-delete, restore and purge. Every bulk operation is a
// sequence of single-record writes, each conditional on the record's state at
// write time, and reports how many records actually changed state; ids that
// are missing or already in the target state are skipped.
type Manager struct {
	store     store.OrderStore
	recorder  store.PurgeRecorder
	remover   SearchRemover
	indexer   Indexer
	retention time.Duration
	now       func() time.Time
}

func NewManager(st store.OrderStore, cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		store:     st,
		retention: models.RetentionWindow(cfg.RetentionDays),
		now:       cfg.Now,
	}
	if rec, ok := st.(store.PurgeRecorder); ok {
		m.recorder = rec
	}
	return m
}

// SetSearchRemover attaches an index to clean up on purge
func (m *Manager) SetSearchRemover(r SearchRemover) {
	m.remover = r
}

// SetIndexer attaches an index that recreated orders are pushed to
func (m *Manager) SetIndexer(idx Indexer) {
	m.indexer = idx
}

// SoftDelete moves active orders to the trash
func (m *Manager) SoftDelete(ctx context.Context, ids ...uint) int {
	now := m.now()
	return m.each(ctx, "soft-delete", ids, func(id uint) error {
		return m.store.UpdateFields(ctx, id, store.Patch{DeletedAt: &now, Require: store.StateActive})
	})
}

// Restore moves trashed orders back to the active set
func (m *Manager) Restore(ctx context.Context, ids ...uint) int {
	return m.each(ctx, "restore", ids, func(id uint) error {
		return m.store.UpdateFields(ctx, id, store.Patch{ClearDeletedAt: true, Require: store.StateTrashed})
	})
}

// PermanentDelete removes trashed orders. Active orders are never purged
// here; they have to be trashed first.
func (m *Manager) PermanentDelete(ctx context.Context, ids ...uint) int {
	var purged []uint
	n := m.each(ctx, "permanent-delete", ids, func(id uint) error {
		o, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := m.purge(ctx, o, nil, models.PurgeReasonManual); err != nil {
			return err
		}
		purged = append(purged, id)
		return nil
	})
	m.removeFromSearch(purged)
	return n
}

// PurgeExpired removes every trashed order whose age reached the retention
// window and returns how many were removed.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.retention)
	expired, err := m.store.Scan(ctx, store.Filter{State: store.StateTrashed, TrashedBy: &cutoff}, store.SortDeletedDesc)
	if err != nil {
		return 0, fmt.Errorf("find expired trash: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	log := logging.For("lifecycle")
	var purged []uint
	for i := range expired {
		o := &expired[i]
		err := m.purge(ctx, o, &cutoff, models.PurgeReasonExpired)
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStateChanged) {
			continue
		}
		if err != nil {
			log.Errorf("Lifecycle: failed to purge expired order %d: %v", o.ID, err)
			continue
		}
		purged = append(purged, o.ID)
	}
	m.removeFromSearch(purged)

	log.Infof("Lifecycle: purged %d/%d expired order(s) trashed on or before %s",
		len(purged), len(expired), cutoff.Format("2006-01-02 15:04"))
	return len(purged), nil
}

// ListTrash purges expired entries, then returns the remaining trash sorted
// by deleted_at descending.
func (m *Manager) ListTrash(ctx context.Context) ([]TrashEntry, error) {
	if _, err := m.PurgeExpired(ctx); err != nil {
		return nil, err
	}

	orders, err := m.store.Scan(ctx, store.Filter{State: store.StateTrashed}, store.SortDeletedDesc)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}

	now := m.now()
	entries := make([]TrashEntry, 0, len(orders))
	for _, o := range orders {
		entries = append(entries, TrashEntry{Order: o, DaysRemaining: o.DaysRemaining(now, m.retention)})
	}
	return entries, nil
}

// RecentPurges returns the purge history, newest first
func (m *Manager) RecentPurges(ctx context.Context, limit int) ([]models.PurgeLog, error) {
	if m.recorder == nil {
		return []models.PurgeLog{}, nil
	}
	return m.recorder.RecentPurges(ctx, limit)
}

// purge deletes o only if it is still trashed (and trashed by cutoff when
// set) at the moment of deletion, then records the purge.
func (m *Manager) purge(ctx context.Context, o *models.Order, cutoff *time.Time, reason string) error {
	if err := m.store.DeleteTrashed(ctx, o.ID, cutoff); err != nil {
		return err
	}

	if m.recorder != nil {
		entry := &models.PurgeLog{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			ProductName: o.ProductName,
			PurgedAt:    m.now(),
			Reason:      reason,
		}
		if o.DeletedAt != nil {
			entry.TrashedAt = *o.DeletedAt
		}
		if err := m.recorder.RecordPurge(ctx, entry); err != nil {
			logging.For("lifecycle").Warnf("Lifecycle: order %d purged but purge log failed: %v", o.ID, err)
		}
	}
	return nil
}

// each applies fn to every id and counts the ids fn actually changed. Ids
// that are missing or already left the required state are skipped.
func (m *Manager) each(ctx context.Context, op string, ids []uint, fn func(id uint) error) int {
	log := logging.For("lifecycle")
	count := 0
	for _, id := range ids {
		err := fn(id)
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStateChanged) {
			continue
		}
		if err != nil {
			log.Errorf("Lifecycle: %s failed for order %d: %v", op, id, err)
			continue
		}
		count++
	}
	if len(ids) > 1 {
		log.Infof("Lifecycle: %s affected %d of %d order(s)", op, count, len(ids))
	}
	return count
}

func (m *Manager) removeFromSearch(ids []uint) {
	if m.remover == nil || len(ids) == 0 {
		return
	}
	if err := m.remover.RemoveOrders(ids); err != nil {
		logging.For("lifecycle").Warnf("Lifecycle: failed to remove %d order(s) from search: %v", len(ids), err)
	}
}

// RecreateRequest carries a full order record, e.g. from an undo-delete flow
type RecreateRequest struct {
	OrderNumber        string               `json:"order_number"`
	ProductName        string               `json:"product_name" binding:"required"`
	QuantityOrdered    string               `json:"quantity_ordered"`
	Unit               string               `json:"unit"`
	DeliveryDueDate    string               `json:"delivery_due_date"`
	RetailerName       string               `json:"retailer_name"`
	RetailerEmail      string               `json:"retailer_email"`
	RetailerAddress    string               `json:"retailer_address"`
	RetailerPhone      string               `json:"retailer_phone"`
	Remarks            string               `json:"remarks"`
	ExtractedText      string               `json:"extracted_text"`
	ClientEmailSubject string               `json:"client_email_subject"`
	AttachmentPath     string               `json:"attachment_path"`
	ConfidenceScore    *float64             `json:"confidence_score"`
	PriorityLevel      models.PriorityLevel `json:"priority_level"`
	OrderStatus        models.OrderStatus   `json:"order_status"`
	SourceOfOrder      models.OrderSource   `json:"source_of_order"`
}

// Recreate inserts a new active order from a caller-supplied record. The
// original row is not resurrected, so the returned order has a new id and
// carries no email hash.
func (m *Manager) Recreate(ctx context.Context, req RecreateRequest) (*models.Order, error) {
	now := m.now()

	priority, err := models.ParsePriority(string(req.PriorityLevel))
	if err != nil {
		return nil, err
	}
	status := req.OrderStatus
	if status == "" {
		status = models.StatusApproved
	} else if status, err = models.ParseOrderStatus(string(status)); err != nil {
		return nil, err
	}
	source, err := models.ParseOrderSource(string(req.SourceOfOrder))
	if err != nil {
		return nil, err
	}
	score := 100.0
	if req.ConfidenceScore != nil {
		score = *req.ConfidenceScore
		if score < 0 || score > 100 {
			return nil, fmt.Errorf("confidence score %v out of range 0-100", score)
		}
	}
	number := req.OrderNumber
	if number == "" {
		number = models.NewOrderNumber(now)
	}

	order := &models.Order{
		OrderNumber:        number,
		ProductName:        req.ProductName,
		QuantityOrdered:    req.QuantityOrdered,
		Unit:               req.Unit,
		DeliveryDueDate:    req.DeliveryDueDate,
		RetailerName:       req.RetailerName,
		RetailerEmail:      req.RetailerEmail,
		RetailerAddress:    req.RetailerAddress,
		RetailerPhone:      req.RetailerPhone,
		Remarks:            req.Remarks,
		ExtractedText:      req.ExtractedText,
		ClientEmailSubject: req.ClientEmailSubject,
		AttachmentPath:     req.AttachmentPath,
		ConfidenceScore:    &score,
		PriorityLevel:      priority,
		OrderStatus:        status,
		SourceOfOrder:      source,
		CreatedAt:          now,
		ProcessedAt:        &now,
	}
	if _, err := m.store.Insert(ctx, order); err != nil {
		return nil, fmt.Errorf("recreate order: %w", err)
	}
	log := logging.For("lifecycle")
	log.Infof("Lifecycle: recreated order %s as id %d", order.OrderNumber, order.ID)
	if m.indexer != nil {
		if err := m.indexer.IndexOrder(order); err != nil {
			log.Warnf("Lifecycle: failed to index recreated order %d: %v", order.ID, err)
		}
	}
	return order, nil
}
