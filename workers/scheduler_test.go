package workers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/workers"
)

func newScheduler(db *gorm.DB, q *queue.Queue) *workers.RetryScheduler {
	return &workers.RetryScheduler{
		DB:       db,
		Webhook:  q,
		Interval: time.Millisecond,
		Now:      time.Now,
	}
}

func seedStaleLog(t *testing.T, db *gorm.DB, merchantID, event, payload string, retryAt time.Time) models.WebhookLog {
	t.Helper()
	logEntry := models.WebhookLog{
		MerchantID:  merchantID,
		Event:       event,
		Payload:     datatypes.JSON(payload),
		Status:      models.WebhookStatusPending,
		Attempts:    1,
		NextRetryAt: &retryAt,
	}
	require.NoError(t, db.Create(&logEntry).Error)
	return logEntry
}

func TestRetryScheduler_SweepEnqueuesDueLogs(t *testing.T) {
	db := setupTestDB(t)
	q := newWebhookQueue(t)

	received := make(chan queue.Job, 1)
	q.Process(queue.JobDeliverWebhook, func(ctx context.Context, job queue.Job) error {
		received <- job
		return nil
	})

	stale := seedStaleLog(t, db, "m1", "payment.success", `{"id":"pay_1"}`, time.Now().Add(-time.Minute))

	scheduler := newScheduler(db, q)
	require.NoError(t, scheduler.SweepOnce(context.Background()))

	select {
	case job := <-received:
		var payload workers.WebhookJobPayload
		require.NoError(t, json.Unmarshal(job.Payload, &payload))
		assert.Equal(t, "m1", payload.MerchantID)
		assert.Equal(t, "payment.success", payload.Event)
		assert.JSONEq(t, `{"id":"pay_1"}`, string(payload.Payload))
		// Swept deliveries start fresh rows; the job carries no log id.
		assert.Nil(t, payload.LogID)
	case <-time.After(2 * time.Second):
		t.Fatal("swept job never reached the queue")
	}

	// The claim marker keeps the row out of the next scan.
	var updated models.WebhookLog
	require.NoError(t, db.First(&updated, "id = ?", stale.ID).Error)
	assert.Nil(t, updated.NextRetryAt)
}

func TestRetryScheduler_SecondSweepIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	q := newWebhookQueue(t)

	jobs := make(chan queue.Job, 4)
	q.Process(queue.JobDeliverWebhook, func(ctx context.Context, job queue.Job) error {
		jobs <- job
		return nil
	})

	seedStaleLog(t, db, "m1", "payment.failed", `{"id":"pay_2"}`, time.Now().Add(-time.Minute))

	scheduler := newScheduler(db, q)
	require.NoError(t, scheduler.SweepOnce(context.Background()))
	require.NoError(t, scheduler.SweepOnce(context.Background()))

	select {
	case <-jobs:
	case <-time.After(2 * time.Second):
		t.Fatal("first sweep produced no job")
	}
	select {
	case <-jobs:
		t.Fatal("claimed row was swept twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRetryScheduler_DedupsIdenticalDeliveries(t *testing.T) {
	db := setupTestDB(t)
	q := newWebhookQueue(t)

	jobs := make(chan queue.Job, 4)
	q.Process(queue.JobDeliverWebhook, func(ctx context.Context, job queue.Job) error {
		jobs <- job
		return nil
	})

	// Two rows with the same (merchant, event, payload) collapse to one job.
	seedStaleLog(t, db, "m1", "refund.processed", `{"id":"rfnd_1"}`, time.Now().Add(-2*time.Minute))
	seedStaleLog(t, db, "m1", "refund.processed", `{"id":"rfnd_1"}`, time.Now().Add(-time.Minute))
	seedStaleLog(t, db, "m2", "refund.processed", `{"id":"rfnd_1"}`, time.Now().Add(-time.Minute))

	scheduler := newScheduler(db, q)
	require.NoError(t, scheduler.SweepOnce(context.Background()))

	merchants := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case job := <-jobs:
			var payload workers.WebhookJobPayload
			require.NoError(t, json.Unmarshal(job.Payload, &payload))
			merchants[payload.MerchantID]++
		case <-time.After(2 * time.Second):
			t.Fatal("expected two distinct deliveries")
		}
	}
	assert.Equal(t, map[string]int{"m1": 1, "m2": 1}, merchants)

	select {
	case <-jobs:
		t.Fatal("duplicate delivery was not collapsed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRetryScheduler_IgnoresFutureAndTerminalRows(t *testing.T) {
	db := setupTestDB(t)
	q := newWebhookQueue(t)

	jobs := make(chan queue.Job, 4)
	q.Process(queue.JobDeliverWebhook, func(ctx context.Context, job queue.Job) error {
		jobs <- job
		return nil
	})

	future := time.Now().Add(time.Hour)
	seedStaleLog(t, db, "m1", "payment.success", `{"id":"pay_3"}`, future)

	failedAt := time.Now().Add(-time.Minute)
	failed := models.WebhookLog{
		MerchantID:  "m1",
		Event:       "payment.failed",
		Payload:     datatypes.JSON(`{"id":"pay_4"}`),
		Status:      models.WebhookStatusFailed,
		Attempts:    5,
		NextRetryAt: &failedAt,
	}
	require.NoError(t, db.Create(&failed).Error)

	scheduler := newScheduler(db, q)
	require.NoError(t, scheduler.SweepOnce(context.Background()))

	select {
	case <-jobs:
		t.Fatal("sweep picked up a row it should have skipped")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRetryScheduler_RunStopsOnCancel(t *testing.T) {
	db := setupTestDB(t)
	q := newWebhookQueue(t)

	scheduler := newScheduler(db, q)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
