package models

import (
	"time"
)

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

// Payment methods
const (
	PaymentMethodUPI  = "upi"
	PaymentMethodCard = "card"
)

// Payment represents a payment attempt. Amount is in minor currency units
// (paise for INR). Status moves pending -> success or pending -> failed,
// exactly once; Captured may flip false -> true only while status is success.
type Payment struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	MerchantID       string    `gorm:"index;not null" json:"merchant_id"`
	OrderID          string    `gorm:"not null" json:"order_id"`
	Amount           int64     `gorm:"not null" json:"amount"`
	Currency         string    `gorm:"not null;default:INR" json:"currency"`
	Method           string    `gorm:"not null" json:"method"`
	VPA              string    `json:"vpa,omitempty"`
	CardNumber       string    `json:"-"`
	CardHolder       string    `json:"-"`
	CardExpiry       string    `json:"-"`
	CardCVV          string    `json:"-"`
	Status           string    `gorm:"not null;default:pending" json:"status"`
	Captured         bool      `gorm:"default:false" json:"captured"`
	ErrorCode        string    `json:"error_code,omitempty"`
	ErrorDescription string    `json:"error_description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Refunds []Refund `json:"-" gorm:"foreignKey:PaymentID"`
}
