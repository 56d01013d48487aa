package models

import "time"

// PurgeLog records an order that was permanently removed
type PurgeLog struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     uint      `gorm:"not null;index" json:"order_id"`
	OrderNumber string    `gorm:"type:varchar(64)" json:"order_number"`
	ProductName string    `gorm:"type:text" json:"product_name"`
	TrashedAt   time.Time `json:"trashed_at"`
	PurgedAt    time.Time `gorm:"not null;index" json:"purged_at"`
	Reason      string    `gorm:"type:varchar(32);not null" json:"reason"`
}

func (PurgeLog) TableName() string {
	return "purge_logs"
}

// Purge reasons
const (
	PurgeReasonManual  = "manual"
	PurgeReasonExpired = "expired_30_days"
)
