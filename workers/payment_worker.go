package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/payflow/payflow/config"
	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
)

// Success probabilities by payment method
const (
	upiSuccessRate  = 0.90
	cardSuccessRate = 0.95
)

// PaymentWorker consumes process-payment jobs: it simulates settlement,
// resolves the payment to success or failed exactly once, and emits the
// corresponding webhook event. Safe for concurrent execution across distinct
// payment ids; a redelivered job observes the already-resolved status and
// re-emits without mutating again.
type PaymentWorker struct {
	DB      *gorm.DB
	Emitter WebhookEmitter
	Config  *config.Config

	// Rand and Sleep are injectable for tests.
	Rand  func() float64
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPaymentWorker wires a worker with real randomness and sleeping.
func NewPaymentWorker(db *gorm.DB, emitter WebhookEmitter, cfg *config.Config) *PaymentWorker {
	return &PaymentWorker{
		DB:      db,
		Emitter: emitter,
		Config:  cfg,
		Rand:    rand.Float64,
		Sleep:   sleepCtx,
	}
}

// Handle processes one payment job.
func (w *PaymentWorker) Handle(ctx context.Context, job queue.Job) error {
	var payload PaymentJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return utils.WrapError(err, "decode payment job payload")
	}

	utils.LogInfo("Processing payment %s (attempt %d)", payload.PaymentID, job.Attempt)

	var payment models.Payment
	err := w.DB.WithContext(ctx).First(&payment, "id = ?", payload.PaymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// A job referencing a missing payment signals a consistency bug
		// upstream; retrying cannot fix it.
		return utils.NotFoundError(fmt.Sprintf("payment %s not found", payload.PaymentID), err)
	}
	if err != nil {
		return utils.WrapError(err, "load payment")
	}

	if err := w.Sleep(ctx, w.processingDelay()); err != nil {
		return err
	}

	success := w.resolveOutcome(payment.Method)

	if success {
		return w.succeed(ctx, payment)
	}
	return w.fail(ctx, payment)
}

func (w *PaymentWorker) processingDelay() time.Duration {
	if w.Config.TestMode {
		return w.Config.TestProcessingDelay
	}
	// 5-10 seconds, emulating real settlement time
	return 5*time.Second + time.Duration(w.Rand()*5*float64(time.Second))
}

func (w *PaymentWorker) resolveOutcome(method string) bool {
	if w.Config.TestMode {
		return w.Config.TestPaymentSuccess
	}
	rate := cardSuccessRate
	if method == models.PaymentMethodUPI {
		rate = upiSuccessRate
	}
	return w.Rand() < rate
}

func (w *PaymentWorker) succeed(ctx context.Context, payment models.Payment) error {
	// Guarded update: only a pending payment transitions, so redelivered
	// jobs cannot flip an already-resolved payment.
	err := w.DB.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":            models.PaymentStatusSuccess,
			"error_code":        "",
			"error_description": "",
			"updated_at":        time.Now(),
		}).Error
	if err != nil {
		return utils.WrapError(err, "update payment status")
	}

	utils.LogInfo("Payment %s succeeded", payment.ID)

	snapshot := map[string]interface{}{
		"id":          payment.ID,
		"order_id":    payment.OrderID,
		"amount":      payment.Amount,
		"currency":    payment.Currency,
		"method":      payment.Method,
		"vpa":         payment.VPA,
		"card_number": payment.CardNumber,
		"card_holder": payment.CardHolder,
		"card_expiry": payment.CardExpiry,
		"status":      models.PaymentStatusSuccess,
		"created_at":  payment.CreatedAt,
	}

	// Emission failure fails the job; redelivery re-runs the (now no-op)
	// status update and emits again. Duplicate notifications are possible
	// and preferred over losing one.
	_, err = w.Emitter.Emit(ctx, payment.MerchantID, "payment.success", map[string]interface{}{"payment": snapshot})
	return err
}

func (w *PaymentWorker) fail(ctx context.Context, payment models.Payment) error {
	errorCode := "PAYMENT_FAILED"
	errorDescription := "Payment processing failed"

	err := w.DB.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":            models.PaymentStatusFailed,
			"error_code":        errorCode,
			"error_description": errorDescription,
			"updated_at":        time.Now(),
		}).Error
	if err != nil {
		return utils.WrapError(err, "update payment status")
	}

	utils.LogInfo("Payment %s failed", payment.ID)

	// Redacted snapshot: no VPA or card fields on failure events.
	snapshot := map[string]interface{}{
		"id":                payment.ID,
		"order_id":          payment.OrderID,
		"amount":            payment.Amount,
		"currency":          payment.Currency,
		"method":            payment.Method,
		"status":            models.PaymentStatusFailed,
		"error_code":        errorCode,
		"error_description": errorDescription,
		"created_at":        payment.CreatedAt,
	}

	_, err = w.Emitter.Emit(ctx, payment.MerchantID, "payment.failed", map[string]interface{}{"payment": snapshot})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
