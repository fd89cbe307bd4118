package models

import (
	"time"

	"gorm.io/datatypes"
)

// Webhook delivery statuses
const (
	WebhookStatusPending = "pending"
	WebhookStatusSuccess = "success"
	WebhookStatusFailed  = "failed"
)

// MaxWebhookAttempts caps delivery attempts per log entry; after the cap the
// entry is terminally failed and only a manual retry can revive it.
const MaxWebhookAttempts = 5

// WebhookLog records the delivery lifecycle of one merchant notification.
// Attempts is monotonic; once Status is success or Attempts reaches the cap,
// NextRetryAt is cleared and no further delivery is scheduled.
type WebhookLog struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	MerchantID    string         `gorm:"index;not null" json:"merchant_id"`
	Event         string         `gorm:"not null" json:"event"`
	Payload       datatypes.JSON `json:"payload"`
	Status        string         `gorm:"not null;default:pending" json:"status"`
	Attempts      int            `gorm:"default:0" json:"attempts"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time     `gorm:"index" json:"next_retry_at,omitempty"`
	ResponseCode  *int           `json:"response_code,omitempty"`
	ResponseBody  string         `json:"response_body,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// WebhookPayload is the canonical body posted to merchant endpoints.
type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}
