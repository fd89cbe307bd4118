package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
)

// RefundWorker consumes process-refund jobs: it re-validates refundability
// at processing time, simulates settlement, moves the refund to processed
// exactly once, and emits refund.processed.
type RefundWorker struct {
	DB      *gorm.DB
	Emitter WebhookEmitter

	Rand  func() float64
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// NewRefundWorker wires a worker with real randomness and sleeping.
func NewRefundWorker(db *gorm.DB, emitter WebhookEmitter) *RefundWorker {
	return &RefundWorker{
		DB:      db,
		Emitter: emitter,
		Rand:    rand.Float64,
		Sleep:   sleepCtx,
		Now:     time.Now,
	}
}

// Handle processes one refund job.
func (w *RefundWorker) Handle(ctx context.Context, job queue.Job) error {
	var payload RefundJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return utils.WrapError(err, "decode refund job payload")
	}

	utils.LogInfo("Processing refund %s (attempt %d)", payload.RefundID, job.Attempt)

	var refund models.Refund
	err := w.DB.WithContext(ctx).First(&refund, "id = ?", payload.RefundID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NotFoundError(fmt.Sprintf("refund %s not found", payload.RefundID), err)
	}
	if err != nil {
		return utils.WrapError(err, "load refund")
	}

	// Creation-time checks are repeated here because the payment and its
	// refund set may have changed while the job sat in the queue.
	if err := w.revalidate(ctx, refund); err != nil {
		return err
	}

	// Simulated settlement latency, 3-5 seconds
	if err := w.Sleep(ctx, 3*time.Second+time.Duration(w.Rand()*2*float64(time.Second))); err != nil {
		return err
	}

	processedAt := w.Now()
	err = w.DB.WithContext(ctx).Model(&models.Refund{}).
		Where("id = ? AND status = ?", refund.ID, models.RefundStatusPending).
		Updates(map[string]interface{}{
			"status":       models.RefundStatusProcessed,
			"processed_at": processedAt,
		}).Error
	if err != nil {
		return utils.WrapError(err, "update refund status")
	}

	utils.LogInfo("Refund %s processed", refund.ID)

	snapshot := map[string]interface{}{
		"id":           refund.ID,
		"payment_id":   refund.PaymentID,
		"amount":       refund.Amount,
		"reason":       refund.Reason,
		"status":       models.RefundStatusProcessed,
		"created_at":   refund.CreatedAt,
		"processed_at": processedAt,
	}

	_, err = w.Emitter.Emit(ctx, refund.MerchantID, "refund.processed", map[string]interface{}{"refund": snapshot})
	return err
}

// revalidate checks, inside a transaction holding the payment row, that the
// payment is still refundable and the refund set does not overspend it.
func (w *RefundWorker) revalidate(ctx context.Context, refund models.Refund) error {
	return w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := utils.LockForUpdate(tx).First(&payment, "id = ?", refund.PaymentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFoundError(fmt.Sprintf("payment %s not found", refund.PaymentID), err)
		}
		if err != nil {
			return utils.WrapError(err, "load payment")
		}

		if payment.Status != models.PaymentStatusSuccess {
			return utils.ConflictError(fmt.Sprintf("payment %s is not in refundable state", payment.ID), nil)
		}

		var total int64
		err = tx.Model(&models.Refund{}).
			Where("payment_id = ? AND status IN ?", payment.ID, []string{models.RefundStatusPending, models.RefundStatusProcessed}).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&total).Error
		if err != nil {
			return utils.WrapError(err, "sum refund amounts")
		}

		if total > payment.Amount {
			return utils.ConflictError("total refunded amount exceeds payment amount", nil)
		}

		return nil
	})
}
