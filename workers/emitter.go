package workers

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
)

// WebhookEmitter is the only path by which workers publish merchant
// notifications. Implementations must create the log row and enqueue the
// delivery job synchronously, within the calling worker's job.
type WebhookEmitter interface {
	Emit(ctx context.Context, merchantID, event string, data interface{}) (uint, error)
}

// Emitter writes a pending WebhookLog row and enqueues a webhook-delivery
// job carrying the serialized payload and the log id.
type Emitter struct {
	DB      *gorm.DB
	Webhook *queue.Queue
	Now     func() time.Time
}

// NewEmitter creates an Emitter with a real clock.
func NewEmitter(db *gorm.DB, webhookQueue *queue.Queue) *Emitter {
	return &Emitter{DB: db, Webhook: webhookQueue, Now: time.Now}
}

// Emit creates the delivery log entry and schedules delivery. Returns the
// log id.
func (e *Emitter) Emit(ctx context.Context, merchantID, event string, data interface{}) (uint, error) {
	payload := models.WebhookPayload{
		Event:     event,
		Timestamp: e.Now().Unix(),
		Data:      data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, utils.WrapError(err, "marshal webhook payload")
	}

	logEntry := models.WebhookLog{
		MerchantID: merchantID,
		Event:      event,
		Payload:    datatypes.JSON(body),
		Status:     models.WebhookStatusPending,
		Attempts:   0,
	}

	if err := e.DB.WithContext(ctx).Create(&logEntry).Error; err != nil {
		return 0, utils.WrapError(err, "create webhook log")
	}

	_, err = e.Webhook.Enqueue(ctx, queue.JobDeliverWebhook, WebhookJobPayload{
		MerchantID: merchantID,
		Event:      event,
		Payload:    body,
		LogID:      &logEntry.ID,
	})
	if err != nil {
		return 0, utils.WrapError(err, "enqueue webhook delivery")
	}

	utils.LogInfo("Enqueued webhook %s for merchant %s (log %d)", event, merchantID, logEntry.ID)
	return logEntry.ID, nil
}
