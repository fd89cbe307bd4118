package models

import (
	"time"

	"gorm.io/datatypes"
)

// IdempotencyKey caches the response of a payment-creation request so that a
// repeat with the same key replays the original response instead of creating
// a duplicate payment. Entries expire 24 hours after creation.
type IdempotencyKey struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Key        string         `gorm:"uniqueIndex:idx_idem_key_merchant;not null" json:"key"`
	MerchantID string         `gorm:"uniqueIndex:idx_idem_key_merchant;not null" json:"merchant_id"`
	Response   datatypes.JSON `json:"response"`
	ExpiresAt  time.Time      `json:"expires_at"`
	CreatedAt  time.Time      `json:"created_at"`
}
