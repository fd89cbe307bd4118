package utils

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/payflow/payflow/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdempotencyTTL is how long a cached response stays valid.
const IdempotencyTTL = 24 * time.Hour

// CheckIdempotencyKey returns the cached response for (key, merchantID), or
// nil on a miss. Expired records are treated as a miss and discarded.
func CheckIdempotencyKey(db *gorm.DB, key, merchantID string) (json.RawMessage, error) {
	var record models.IdempotencyKey
	err := db.Where("key = ? AND merchant_id = ?", key, merchantID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(record.ExpiresAt) {
		if err := db.Delete(&record).Error; err != nil {
			LogError("Failed to delete expired idempotency key %s: %v", key, err)
		}
		return nil, nil
	}

	return json.RawMessage(record.Response), nil
}

// StoreIdempotencyKey caches a response body for (key, merchantID) for the
// TTL window, replacing any existing record.
func StoreIdempotencyKey(db *gorm.DB, key, merchantID string, response interface{}) error {
	body, err := json.Marshal(response)
	if err != nil {
		return err
	}

	record := models.IdempotencyKey{
		Key:        key,
		MerchantID: merchantID,
		Response:   datatypes.JSON(body),
		ExpiresAt:  time.Now().Add(IdempotencyTTL),
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}, {Name: "merchant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"response", "expires_at"}),
	}).Create(&record).Error
}
