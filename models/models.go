package models

import (
	"time"
)

// Merchant represents a registered merchant account. API requests are
// authenticated against APIKey/APISecretHash; webhook deliveries are signed
// with WebhookSecret and posted to WebhookURL.
type Merchant struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	APIKey        string    `gorm:"uniqueIndex;not null" json:"-"`
	APISecretHash string    `json:"-"`
	WebhookURL    string    `json:"webhook_url"`
	WebhookSecret string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Payments []Payment `json:"-" gorm:"foreignKey:MerchantID"`
}
