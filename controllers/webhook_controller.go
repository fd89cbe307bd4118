package controllers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
	"github.com/payflow/payflow/workers"
)

// WebhookController exposes the delivery log for operator inspection and
// manual re-trigger.
type WebhookController struct {
	DB     *gorm.DB
	Queues *queue.Manager
}

// ListWebhookLogs returns the merchant's delivery log, newest first.
// GET /v1/webhooks?limit=&offset=
func (wc *WebhookController) ListWebhookLogs(c *gin.Context) {
	merchant := c.MustGet("merchant").(models.Merchant)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	var logs []models.WebhookLog
	err = wc.DB.Where("merchant_id = ?", merchant.ID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		utils.LogError("Failed to list webhook logs for merchant %s: %v", merchant.ID, err)
		utils.InternalServerError(c, "Failed to list webhook logs")
		return
	}

	var total int64
	if err := wc.DB.Model(&models.WebhookLog{}).Where("merchant_id = ?", merchant.ID).Count(&total).Error; err != nil {
		utils.InternalServerError(c, "Failed to list webhook logs")
		return
	}

	data := make([]gin.H, 0, len(logs))
	for _, logEntry := range logs {
		data = append(data, gin.H{
			"id":              logEntry.ID,
			"event":           logEntry.Event,
			"status":          logEntry.Status,
			"attempts":        logEntry.Attempts,
			"created_at":      logEntry.CreatedAt,
			"last_attempt_at": logEntry.LastAttemptAt,
			"response_code":   logEntry.ResponseCode,
		})
	}

	c.JSON(200, gin.H{
		"data":   data,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// RetryWebhook resets a log entry's attempt budget and re-enqueues delivery
// against the same log row.
// POST /v1/webhooks/:webhook_id/retry
func (wc *WebhookController) RetryWebhook(c *gin.Context) {
	merchant := c.MustGet("merchant").(models.Merchant)

	var logEntry models.WebhookLog
	err := wc.DB.First(&logEntry, "id = ? AND merchant_id = ?", c.Param("webhook_id"), merchant.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.NotFound(c, "Webhook log not found")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "An internal error occurred")
		return
	}

	err = wc.DB.Model(&models.WebhookLog{}).
		Where("id = ?", logEntry.ID).
		Updates(map[string]interface{}{
			"status":        models.WebhookStatusPending,
			"attempts":      0,
			"next_retry_at": nil,
		}).Error
	if err != nil {
		utils.LogError("Failed to reset webhook log %d: %v", logEntry.ID, err)
		utils.InternalServerError(c, "Failed to retry webhook")
		return
	}

	_, err = wc.Queues.Webhook.Enqueue(c.Request.Context(), queue.JobDeliverWebhook, workers.WebhookJobPayload{
		MerchantID: merchant.ID,
		Event:      logEntry.Event,
		Payload:    json.RawMessage(logEntry.Payload),
		LogID:      &logEntry.ID,
	})
	if err != nil {
		utils.LogError("Failed to enqueue webhook retry for log %d: %v", logEntry.ID, err)
		utils.InternalServerError(c, "Failed to retry webhook")
		return
	}

	utils.LogInfo("Manual retry scheduled for webhook log %d", logEntry.ID)

	c.JSON(200, gin.H{
		"id":      logEntry.ID,
		"status":  models.WebhookStatusPending,
		"message": "Webhook retry scheduled",
	})
}
