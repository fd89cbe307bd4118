package models

import (
	"time"
)

// Refund statuses
const (
	RefundStatusPending   = "pending"
	RefundStatusProcessed = "processed"
)

// Refund represents a full or partial refund against a successful payment.
// The sum of pending and processed refund amounts for a payment must never
// exceed the payment amount.
type Refund struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	PaymentID   string     `gorm:"index;not null" json:"payment_id"`
	MerchantID  string     `gorm:"index;not null" json:"merchant_id"`
	Amount      int64      `gorm:"not null" json:"amount"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `gorm:"not null;default:pending" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
