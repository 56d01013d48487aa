// Package extractor turns inbound messages into structured order fields.
package extractor

import (
	"context"
	"errors"
	"time"

	"order-intake/internal/mailbox"
	"order-intake/internal/models"
)

// ErrNotAnOrder signals that a message carries no purchase order.
var ErrNotAnOrder = errors.New("message is not an order")

// Extractor parses one message. It returns ErrNotAnOrder for messages that
// should be skipped; any other error is an extraction failure.
type Extractor interface {
	Extract(ctx context.Context, msg mailbox.Message) (*Result, error)
}

// Result is the field set produced for one message
type Result struct {
	ProductName     string
	QuantityOrdered string
	Unit            string
	DeliveryDueDate string
	RetailerName    string
	RetailerEmail   string
	RetailerAddress string
	RetailerPhone   string
	Remarks         string
	ExtractedText   string
	Subject         string
	AttachmentPath  string
	Priority        models.PriorityLevel
	// Confidence is in [0, 100]
	Confidence float64
}

// NewOrder builds an email-sourced order from the result
func (r *Result) NewOrder(emailHash string, createdAt, processedAt time.Time) *models.Order {
	confidence := clampScore(r.Confidence)
	priority := r.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	hash := emailHash

	return &models.Order{
		OrderNumber:        models.NewOrderNumber(createdAt),
		ProductName:        r.ProductName,
		QuantityOrdered:    r.QuantityOrdered,
		Unit:               r.Unit,
		DeliveryDueDate:    r.DeliveryDueDate,
		RetailerName:       r.RetailerName,
		RetailerEmail:      r.RetailerEmail,
		RetailerAddress:    r.RetailerAddress,
		RetailerPhone:      r.RetailerPhone,
		Remarks:            r.Remarks,
		ExtractedText:      r.ExtractedText,
		ClientEmailSubject: r.Subject,
		AttachmentPath:     r.AttachmentPath,
		ConfidenceScore:    &confidence,
		PriorityLevel:      priority,
		OrderStatus:        models.StatusForConfidence(confidence),
		SourceOfOrder:      models.SourceEmail,
		EmailHash:          &hash,
		CreatedAt:          createdAt,
		ProcessedAt:        &processedAt,
	}
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
