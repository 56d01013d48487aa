package models

import (
	"fmt"
	"time"
)

// TrashRetentionDays is how long a soft-deleted order stays recoverable
const TrashRetentionDays = 30

type Order struct {
	// Identity
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string `gorm:"type:varchar(64);index" json:"order_number"`

	// Extracted fields
	ProductName        string `gorm:"type:text" json:"product_name"`
	QuantityOrdered    string `gorm:"type:varchar(64)" json:"quantity_ordered"`
	Unit               string `gorm:"type:varchar(32)" json:"unit"`
	DeliveryDueDate    string `gorm:"type:varchar(32)" json:"delivery_due_date"`
	RetailerName       string `gorm:"type:text" json:"retailer_name"`
	RetailerEmail      string `gorm:"type:varchar(255)" json:"retailer_email"`
	RetailerAddress    string `gorm:"type:text" json:"retailer_address"`
	RetailerPhone      string `gorm:"type:varchar(64)" json:"retailer_phone"`
	Remarks            string `gorm:"type:text" json:"remarks"`
	ExtractedText      string `gorm:"type:text" json:"extracted_text"`
	ClientEmailSubject string `gorm:"type:text" json:"client_email_subject"`
	AttachmentPath     string `gorm:"type:text" json:"attachment_path,omitempty"`

	// Classification
	ConfidenceScore *float64      `json:"confidence_score"`
	PriorityLevel   PriorityLevel `gorm:"type:varchar(16);not null;default:'Normal'" json:"priority_level"`
	OrderStatus     OrderStatus   `gorm:"type:varchar(32);not null;default:'Pending';index" json:"order_status"`
	SourceOfOrder   OrderSource   `gorm:"type:varchar(16);not null;default:'Email'" json:"source_of_order"`
	DuplicateFlag   bool          `gorm:"not null;default:false" json:"duplicate_flag"`

	// Dedup key (null for manual orders)
	EmailHash *string `gorm:"type:varchar(64);uniqueIndex" json:"email_hash,omitempty"`

	// Lifecycle
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

func (Order) TableName() string {
	return "purchase_orders"
}

// PriorityLevel is the urgency attached to an order
type PriorityLevel string

const (
	PriorityNormal PriorityLevel = "Normal"
	PriorityUrgent PriorityLevel = "Urgent"
	PriorityLow    PriorityLevel = "Low"
)

// OrderStatus is the review state of an order
type OrderStatus string

const (
	StatusPending     OrderStatus = "Pending"
	StatusApproved    OrderStatus = "Approved"
	StatusNeedsReview OrderStatus = "Needs Review"
	StatusRejected    OrderStatus = "Rejected"
)

// OrderSource records how an order entered the system
type OrderSource string

const (
	SourceEmail  OrderSource = "Email"
	SourceManual OrderSource = "Manual"
)

// ReviewThreshold is the confidence at or above which an extracted order
// goes straight to Pending instead of Needs Review.
const ReviewThreshold = 70.0

// StatusForConfidence derives the initial status of an extracted order.
func StatusForConfidence(score float64) OrderStatus {
	if score >= ReviewThreshold {
		return StatusPending
	}
	return StatusNeedsReview
}

// ParseOrderStatus validates a status string
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusApproved, StatusNeedsReview, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// ParseOrderSource validates a source string, empty means Email
func ParseOrderSource(s string) (OrderSource, error) {
	switch src := OrderSource(s); src {
	case "":
		return SourceEmail, nil
	case SourceEmail, SourceManual:
		return src, nil
	}
	return "", fmt.Errorf("unknown order source %q", s)
}

// ParsePriority validates a priority string, empty means Normal
func ParsePriority(s string) (PriorityLevel, error) {
	switch p := PriorityLevel(s); p {
	case "":
		return PriorityNormal, nil
	case PriorityNormal, PriorityUrgent, PriorityLow:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// IsActive reports whether the order is outside the trash
func (o *Order) IsActive() bool {
	return o.DeletedAt == nil
}

// TrashAge returns how long the order has been in the trash
func (o *Order) TrashAge(now time.Time) time.Duration {
	if o.DeletedAt == nil {
		return 0
	}
	return now.Sub(*o.DeletedAt)
}

// IsExpired reports whether a trashed order is past the retention window
func (o *Order) IsExpired(now time.Time, retention time.Duration) bool {
	return o.DeletedAt != nil && o.TrashAge(now) >= retention
}

// DaysRemaining is max(0, retention days - whole days in trash)
func (o *Order) DaysRemaining(now time.Time, retention time.Duration) int {
	if o.DeletedAt == nil {
		return 0
	}
	days := int(o.TrashAge(now) / (24 * time.Hour))
	if remaining := int(retention/(24*time.Hour)) - days; remaining > 0 {
		return remaining
	}
	return 0
}

// RetentionWindow converts a retention in days to a duration, falling back
// to TrashRetentionDays for non-positive input.
func RetentionWindow(days int) time.Duration {
	if days <= 0 {
		days = TrashRetentionDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// NewOrderNumber builds the display number used for new orders
func NewOrderNumber(t time.Time) string {
	return fmt.Sprintf("PO-%d", t.Unix())
}
