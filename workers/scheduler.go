package workers

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
)

// SweepBatchSize caps how many stale logs one sweep re-enqueues.
const SweepBatchSize = 10

// RetryScheduler periodically re-enqueues webhook log entries whose
// scheduled retry time has arrived. It is a coarser second delivery path
// alongside the dispatcher's own delayed re-enqueue, covering logs whose
// delayed job was lost (e.g. across a worker restart). Swept rows are
// claimed by clearing next_retry_at inside the scan transaction so the same
// stale row is never swept twice.
type RetryScheduler struct {
	DB       *gorm.DB
	Webhook  *queue.Queue
	Interval time.Duration
	Now      func() time.Time
}

// NewRetryScheduler wires a scheduler with the standard 10s sweep interval.
func NewRetryScheduler(db *gorm.DB, webhookQueue *queue.Queue) *RetryScheduler {
	return &RetryScheduler{
		DB:       db,
		Webhook:  webhookQueue,
		Interval: 10 * time.Second,
		Now:      time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				utils.LogError("Webhook retry sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce claims due pending log entries and re-enqueues an immediate
// delivery for each distinct (merchant, event, payload). The jobs carry no
// log id, so the dispatcher records them against fresh log rows.
func (s *RetryScheduler) SweepOnce(ctx context.Context) error {
	type target struct {
		MerchantID string
		Event      string
		Payload    []byte
	}

	var targets []target
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []models.WebhookLog
		err := tx.Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", models.WebhookStatusPending, s.Now()).
			Order("next_retry_at").
			Limit(SweepBatchSize).
			Find(&due).Error
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(due))
		seen := make(map[string]bool)
		for _, logEntry := range due {
			ids = append(ids, logEntry.ID)
			key := logEntry.MerchantID + "|" + logEntry.Event + "|" + string(logEntry.Payload)
			if seen[key] {
				continue
			}
			seen[key] = true
			targets = append(targets, target{
				MerchantID: logEntry.MerchantID,
				Event:      logEntry.Event,
				Payload:    logEntry.Payload,
			})
		}

		// Claim marker: a swept row will not match the next scan.
		return tx.Model(&models.WebhookLog{}).
			Where("id IN ?", ids).
			Update("next_retry_at", nil).Error
	})
	if err != nil {
		return err
	}

	for _, t := range targets {
		_, err := s.Webhook.Enqueue(ctx, queue.JobDeliverWebhook, WebhookJobPayload{
			MerchantID: t.MerchantID,
			Event:      t.Event,
			Payload:    json.RawMessage(t.Payload),
		})
		if err != nil {
			utils.LogError("Webhook retry sweep enqueue failed for merchant %s: %v", t.MerchantID, err)
			continue
		}
		utils.LogInfo("Webhook retry sweep re-enqueued %s for merchant %s", t.Event, t.MerchantID)
	}

	return nil
}
