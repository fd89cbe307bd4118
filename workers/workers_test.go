package workers_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/payflow/payflow/config"
	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/utils"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

type emittedEvent struct {
	MerchantID string
	Event      string
	Data       interface{}
}

// fakeEmitter records emissions and can be told to fail, standing in for the
// real webhook emitter.
type fakeEmitter struct {
	events []emittedEvent
	err    error
}

func (f *fakeEmitter) Emit(ctx context.Context, merchantID, event string, data interface{}) (uint, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.events = append(f.events, emittedEvent{MerchantID: merchantID, Event: event, Data: data})
	return uint(len(f.events)), nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func seedMerchant(t *testing.T, db *gorm.DB, webhookURL, webhookSecret string) models.Merchant {
	t.Helper()
	merchant := models.Merchant{
		ID:            "merchant-" + t.Name(),
		Name:          "Test Merchant",
		Email:         t.Name() + "@example.com",
		APIKey:        "key_" + t.Name(),
		APISecretHash: "unused",
		WebhookURL:    webhookURL,
		WebhookSecret: webhookSecret,
	}
	require.NoError(t, db.Create(&merchant).Error)
	return merchant
}

func seedPayment(t *testing.T, db *gorm.DB, merchantID, status string, amount int64) models.Payment {
	t.Helper()
	payment := models.Payment{
		ID:         utils.GenerateID(utils.PaymentIDPrefix),
		MerchantID: merchantID,
		OrderID:    "ord_1",
		Amount:     amount,
		Currency:   "INR",
		Method:     models.PaymentMethodUPI,
		VPA:        "a@b",
		Status:     status,
	}
	require.NoError(t, db.Create(&payment).Error)
	return payment
}

func seedRefund(t *testing.T, db *gorm.DB, paymentID, merchantID, status string, amount int64) models.Refund {
	t.Helper()
	refund := models.Refund{
		ID:         utils.GenerateID(utils.RefundIDPrefix),
		PaymentID:  paymentID,
		MerchantID: merchantID,
		Amount:     amount,
		Reason:     "customer request",
		Status:     status,
	}
	require.NoError(t, db.Create(&refund).Error)
	return refund
}
