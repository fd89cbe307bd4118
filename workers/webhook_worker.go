package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/payflow/payflow/config"
	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
)

// SignatureHeader carries the hex HMAC-SHA256 of the delivered body.
const SignatureHeader = "X-Webhook-Signature"

// DeliveryTimeout bounds each outbound POST.
const DeliveryTimeout = 5 * time.Second

// WebhookDispatcher consumes deliver-webhook jobs. It signs and posts the
// payload to the merchant endpoint, records the attempt on the log row, and
// schedules bounded retries itself — the queue grants it a single attempt.
type WebhookDispatcher struct {
	DB      *gorm.DB
	Webhook *queue.Queue
	Client  *http.Client
	Config  *config.Config
	Now     func() time.Time
}

// NewWebhookDispatcher wires a dispatcher with the delivery timeout applied.
func NewWebhookDispatcher(db *gorm.DB, webhookQueue *queue.Queue, cfg *config.Config) *WebhookDispatcher {
	return &WebhookDispatcher{
		DB:      db,
		Webhook: webhookQueue,
		Client:  &http.Client{Timeout: DeliveryTimeout},
		Config:  cfg,
		Now:     time.Now,
	}
}

// Handle processes one delivery job. Delivery failures are swallowed and
// rescheduled internally; only handler faults (storage unavailable and the
// like) surface to the queue, after a best-effort log update.
func (w *WebhookDispatcher) Handle(ctx context.Context, job queue.Job) error {
	var payload WebhookJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return utils.WrapError(err, "decode webhook job payload")
	}

	if err := w.deliver(ctx, payload); err != nil {
		w.recordFault(ctx, payload)
		return err
	}
	return nil
}

func (w *WebhookDispatcher) deliver(ctx context.Context, payload WebhookJobPayload) error {
	var merchant models.Merchant
	err := w.DB.WithContext(ctx).First(&merchant, "id = ?", payload.MerchantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NotFoundError(fmt.Sprintf("merchant %s not found", payload.MerchantID), err)
	}
	if err != nil {
		return utils.WrapError(err, "load merchant")
	}

	// No destination means no retry can ever succeed.
	if merchant.WebhookURL == "" || merchant.WebhookSecret == "" {
		utils.LogInfo("Skipping webhook for merchant %s - webhook URL or secret not configured", merchant.ID)
		if payload.LogID != nil {
			return w.DB.WithContext(ctx).Model(&models.WebhookLog{}).
				Where("id = ?", *payload.LogID).
				Update("status", models.WebhookStatusFailed).Error
		}
		return nil
	}

	logID, attempts, err := w.resolveLog(ctx, payload)
	if err != nil {
		return err
	}

	statusCode, responseBody := w.post(ctx, merchant, payload.Payload)

	now := w.Now()
	isSuccess := statusCode != nil && *statusCode >= 200 && *statusCode < 300

	if isSuccess {
		utils.LogInfo("Webhook %s delivered to merchant %s (log %d, attempt %d)", payload.Event, merchant.ID, logID, attempts)
		return w.DB.WithContext(ctx).Model(&models.WebhookLog{}).
			Where("id = ?", logID).
			Updates(map[string]interface{}{
				"status":          models.WebhookStatusSuccess,
				"attempts":        attempts,
				"last_attempt_at": now,
				"response_code":   statusCode,
				"response_body":   responseBody,
				"next_retry_at":   nil,
			}).Error
	}

	if attempts >= models.MaxWebhookAttempts {
		utils.LogError("Webhook log %d exhausted all %d attempts, marking failed", logID, attempts)
		return w.DB.WithContext(ctx).Model(&models.WebhookLog{}).
			Where("id = ?", logID).
			Updates(map[string]interface{}{
				"status":          models.WebhookStatusFailed,
				"attempts":        attempts,
				"last_attempt_at": now,
				"response_code":   statusCode,
				"response_body":   responseBody,
				"next_retry_at":   nil,
			}).Error
	}

	nextRetryAt := utils.NextRetryAt(now, attempts, w.Config.WebhookRetryTestIntervals)
	err = w.DB.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ?", logID).
		Updates(map[string]interface{}{
			"status":          models.WebhookStatusPending,
			"attempts":        attempts,
			"last_attempt_at": now,
			"response_code":   statusCode,
			"response_body":   responseBody,
			"next_retry_at":   nextRetryAt,
		}).Error
	if err != nil {
		return err
	}

	return w.requeue(ctx, payload, logID, nextRetryAt)
}

// resolveLog returns the log row to record against and the attempt number
// this delivery counts as. A job without a log id (sweep or legacy path)
// creates a fresh row.
func (w *WebhookDispatcher) resolveLog(ctx context.Context, payload WebhookJobPayload) (uint, int, error) {
	if payload.LogID != nil {
		var logEntry models.WebhookLog
		err := w.DB.WithContext(ctx).First(&logEntry, "id = ?", *payload.LogID).Error
		if err != nil {
			return 0, 0, utils.WrapError(err, "load webhook log")
		}
		return logEntry.ID, logEntry.Attempts + 1, nil
	}

	logEntry := models.WebhookLog{
		MerchantID: payload.MerchantID,
		Event:      payload.Event,
		Payload:    datatypes.JSON(payload.Payload),
		Status:     models.WebhookStatusPending,
		Attempts:   0,
	}
	if err := w.DB.WithContext(ctx).Create(&logEntry).Error; err != nil {
		return 0, 0, utils.WrapError(err, "create webhook log")
	}
	return logEntry.ID, 1, nil
}

// post signs and sends the payload. A nil status code means the request
// never produced a response (timeout or connection error); both cases
// classify as delivery failure.
func (w *WebhookDispatcher) post(ctx context.Context, merchant models.Merchant, body []byte) (*int, string) {
	signature := utils.SignPayload(body, merchant.WebhookSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, merchant.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, truncate(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := w.Client.Do(req)
	if err != nil {
		utils.LogError("Webhook POST to %s failed: %v", merchant.WebhookURL, err)
		return nil, truncate(err.Error())
	}
	defer resp.Body.Close()

	// Read only what can be stored anyway.
	data, _ := io.ReadAll(io.LimitReader(resp.Body, utils.MaxResponseBodyLength+1))
	return &resp.StatusCode, truncate(string(data))
}

func (w *WebhookDispatcher) requeue(ctx context.Context, payload WebhookJobPayload, logID uint, nextRetryAt *time.Time) error {
	if nextRetryAt == nil {
		return nil
	}
	delay := time.Until(*nextRetryAt)
	if delay < 0 {
		delay = 0
	}
	_, err := w.Webhook.Enqueue(ctx, queue.JobDeliverWebhook, WebhookJobPayload{
		MerchantID: payload.MerchantID,
		Event:      payload.Event,
		Payload:    payload.Payload,
		LogID:      &logID,
	}, queue.WithDelay(delay))
	return err
}

// recordFault best-effort applies the attempt-increment/backoff-or-fail
// bookkeeping when the handler errored before reaching classification, so
// the log still reflects that an attempt burned. The most recent matching
// row is located by (merchant, event, payload).
func (w *WebhookDispatcher) recordFault(ctx context.Context, payload WebhookJobPayload) {
	var logEntry models.WebhookLog
	err := w.DB.WithContext(ctx).
		Where("merchant_id = ? AND event = ? AND payload = ?", payload.MerchantID, payload.Event, string(payload.Payload)).
		Order("created_at DESC").
		First(&logEntry).Error
	if err != nil {
		utils.LogError("Webhook fault bookkeeping: no matching log for merchant %s event %s: %v", payload.MerchantID, payload.Event, err)
		return
	}

	now := w.Now()
	attempts := logEntry.Attempts + 1

	if attempts >= models.MaxWebhookAttempts {
		err = w.DB.WithContext(ctx).Model(&models.WebhookLog{}).
			Where("id = ?", logEntry.ID).
			Updates(map[string]interface{}{
				"status":          models.WebhookStatusFailed,
				"attempts":        attempts,
				"last_attempt_at": now,
				"next_retry_at":   nil,
			}).Error
		if err != nil {
			utils.LogError("Webhook fault bookkeeping failed for log %d: %v", logEntry.ID, err)
		}
		return
	}

	nextRetryAt := utils.NextRetryAt(now, attempts, w.Config.WebhookRetryTestIntervals)
	err = w.DB.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ?", logEntry.ID).
		Updates(map[string]interface{}{
			"status":          models.WebhookStatusPending,
			"attempts":        attempts,
			"last_attempt_at": now,
			"next_retry_at":   nextRetryAt,
		}).Error
	if err != nil {
		utils.LogError("Webhook fault bookkeeping failed for log %d: %v", logEntry.ID, err)
		return
	}

	if err := w.requeue(ctx, payload, logEntry.ID, nextRetryAt); err != nil {
		utils.LogError("Webhook fault re-enqueue failed for log %d: %v", logEntry.ID, err)
	}
}

func truncate(s string) string {
	if len(s) > utils.MaxResponseBodyLength {
		return s[:utils.MaxResponseBodyLength]
	}
	return s
}
