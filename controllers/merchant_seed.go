package controllers

import (
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/utils"
)

// CreateSampleMerchant seeds a merchant account from environment variables
// so a fresh deployment has working API credentials. The secret is stored
// bcrypt-hashed; the webhook signing secret stays recoverable because it is
// needed to sign outbound payloads.
func CreateSampleMerchant(db *gorm.DB) error {
	apiKey := os.Getenv("SEED_MERCHANT_API_KEY")
	apiSecret := os.Getenv("SEED_MERCHANT_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		utils.LogInfo("No seed merchant credentials configured, skipping")
		return nil
	}

	hashedSecret, err := bcrypt.GenerateFromPassword([]byte(apiSecret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	merchant := models.Merchant{
		ID:            uuid.New().String(),
		Name:          getenvDefault("SEED_MERCHANT_NAME", "Test Merchant"),
		Email:         getenvDefault("SEED_MERCHANT_EMAIL", "merchant@example.com"),
		APIKey:        apiKey,
		APISecretHash: string(hashedSecret),
		WebhookURL:    os.Getenv("SEED_MERCHANT_WEBHOOK_URL"),
		WebhookSecret: os.Getenv("SEED_MERCHANT_WEBHOOK_SECRET"),
	}

	return db.FirstOrCreate(&merchant, models.Merchant{APIKey: merchant.APIKey}).Error
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
