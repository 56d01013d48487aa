// Package orders implements order entry, listing and reporting on top of an
// OrderStore.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"order-intake/internal/logging"
	"order-intake/internal/models"
	"order-intake/internal/store"
)

// ErrInactive is returned when a status change targets a trashed order
var ErrInactive = errors.New("order is in the trash")

// Indexer receives manually created orders
type Indexer interface {
	IndexOrder(order *models.Order) error
}

// ManualOrderRequest is the payload for a hand-entered order
type ManualOrderRequest struct {
	ProductName   string `json:"product_name" binding:"required"`
	Quantity      string `json:"quantity"`
	Unit          string `json:"unit"`
	DueDate       string `json:"due_date"`
	RetailerName  string `json:"retailer_name"`
	RetailerEmail string `json:"retailer_email" binding:"omitempty,email"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
	Priority      string `json:"priority"`
	Remarks       string `json:"remarks"`
}

// Analytics is the dashboard summary over all stored orders
type Analytics struct {
	TotalOrders   int     `json:"total_orders"`
	OrdersToday   int     `json:"orders_today"`
	UrgentOrders  int     `json:"urgent_orders"`
	AvgConfidence float64 `json:"avg_confidence"`
}

type Service struct {
	store   store.OrderStore
	indexer Indexer
	now     func() time.Time
}

func NewService(st store.OrderStore, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, now: now}
}

// SetIndexer attaches an optional search index
func (s *Service) SetIndexer(idx Indexer) {
	s.indexer = idx
}

// CreateManual inserts an approved, manually sourced order
func (s *Service) CreateManual(ctx context.Context, req ManualOrderRequest) (*models.Order, error) {
	priority, err := models.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	now := s.now()
	score := 100.0
	order := &models.Order{
		OrderNumber:     models.NewOrderNumber(now),
		ProductName:     req.ProductName,
		QuantityOrdered: req.Quantity,
		Unit:            req.Unit,
		DeliveryDueDate: req.DueDate,
		RetailerName:    req.RetailerName,
		RetailerEmail:   req.RetailerEmail,
		RetailerAddress: req.Address,
		RetailerPhone:   req.Phone,
		Remarks:         req.Remarks,
		ExtractedText:   "Manually entered order",
		ConfidenceScore: &score,
		PriorityLevel:   priority,
		OrderStatus:     models.StatusApproved,
		SourceOfOrder:   models.SourceManual,
		CreatedAt:       now,
		ProcessedAt:     &now,
	}
	if _, err := s.store.Insert(ctx, order); err != nil {
		return nil, fmt.Errorf("create manual order: %w", err)
	}

	log := logging.For("orders")
	log.Infof("Orders: manual order %s created (id=%d)", order.OrderNumber, order.ID)
	if s.indexer != nil {
		if err := s.indexer.IndexOrder(order); err != nil {
			log.Warnf("Orders: failed to index order %d: %v", order.ID, err)
		}
	}
	return order, nil
}

// ListActive returns orders outside the trash, newest first
func (s *Service) ListActive(ctx context.Context) ([]models.Order, error) {
	return s.store.Scan(ctx, store.Filter{State: store.StateActive}, store.SortCreatedDesc)
}

// Get returns one order by id, trashed or not
func (s *Service) Get(ctx context.Context, id uint) (*models.Order, error) {
	return s.store.Get(ctx, id)
}

// UpdateStatus changes the review status of an active order
func (s *Service) UpdateStatus(ctx context.Context, id uint, status string) (*models.Order, error) {
	st, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	order, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.IsActive() {
		return nil, ErrInactive
	}
	err = s.store.UpdateFields(ctx, id, store.Patch{Status: &st, Require: store.StateActive})
	if errors.Is(err, store.ErrStateChanged) {
		return nil, ErrInactive
	}
	if err != nil {
		return nil, err
	}
	order.OrderStatus = st
	return order, nil
}

// Analytics computes totals over every stored order, trashed included
func (s *Service) Analytics(ctx context.Context) (*Analytics, error) {
	all, err := s.store.Scan(ctx, store.Filter{}, store.SortCreatedDesc)
	if err != nil {
		return nil, err
	}

	now := s.now()
	y, m, d := now.Date()
	out := &Analytics{TotalOrders: len(all)}

	var sum float64
	var scored int
	for _, o := range all {
		cy, cm, cd := o.CreatedAt.In(now.Location()).Date()
		if cy == y && cm == m && cd == d {
			out.OrdersToday++
		}
		if o.PriorityLevel == models.PriorityUrgent {
			out.UrgentOrders++
		}
		if o.ConfidenceScore != nil {
			sum += *o.ConfidenceScore
			scored++
		}
	}
	if scored > 0 {
		out.AvgConfidence = math.Round(sum/float64(scored)*10) / 10
	}
	return out, nil
}
