package workers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
	"github.com/payflow/payflow/workers"
)

func refundJob(t *testing.T, refundID string) queue.Job {
	t.Helper()
	payload, err := json.Marshal(workers.RefundJobPayload{RefundID: refundID})
	require.NoError(t, err)
	return queue.Job{ID: "job-1", Type: queue.JobProcessRefund, Payload: payload, Attempt: 1}
}

func TestRefundWorker_ProcessesPendingRefund(t *testing.T) {
	db := setupTestDB(t)
	merchant := seedMerchant(t, db, "http://example.com/hook", "whsec")
	payment := seedPayment(t, db, merchant.ID, models.PaymentStatusSuccess, 50000)
	refund := seedRefund(t, db, payment.ID, merchant.ID, models.RefundStatusPending, 20000)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	emitter := &fakeEmitter{}
	worker := &workers.RefundWorker{
		DB:      db,
		Emitter: emitter,
		Rand:    func() float64 { return 0 },
		Sleep:   noSleep,
		Now:     func() time.Time { return now },
	}

	require.NoError(t, worker.Handle(context.Background(), refundJob(t, refund.ID)))

	var updated models.Refund
	require.NoError(t, db.First(&updated, "id = ?", refund.ID).Error)
	assert.Equal(t, models.RefundStatusProcessed, updated.Status)
	require.NotNil(t, updated.ProcessedAt)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, "refund.processed", emitter.events[0].Event)
	assert.Equal(t, merchant.ID, emitter.events[0].MerchantID)
}

func TestRefundWorker_RejectsUnrefundablePayment(t *testing.T) {
	db := setupTestDB(t)
	merchant := seedMerchant(t, db, "http://example.com/hook", "whsec")
	payment := seedPayment(t, db, merchant.ID, models.PaymentStatusFailed, 50000)
	refund := seedRefund(t, db, payment.ID, merchant.ID, models.RefundStatusPending, 20000)

	emitter := &fakeEmitter{}
	worker := &workers.RefundWorker{
		DB:      db,
		Emitter: emitter,
		Rand:    func() float64 { return 0 },
		Sleep:   noSleep,
		Now:     time.Now,
	}

	err := worker.Handle(context.Background(), refundJob(t, refund.ID))
	require.Error(t, err)
	assert.True(t, utils.IsConflictError(err))

	// No partial mutation.
	var updated models.Refund
	require.NoError(t, db.First(&updated, "id = ?", refund.ID).Error)
	assert.Equal(t, models.RefundStatusPending, updated.Status)
	assert.Empty(t, emitter.events)
}

func TestRefundWorker_RejectsOverspentPayment(t *testing.T) {
	db := setupTestDB(t)
	merchant := seedMerchant(t, db, "http://example.com/hook", "whsec")
	payment := seedPayment(t, db, merchant.ID, models.PaymentStatusSuccess, 50000)

	// Existing refunds plus the one being processed exceed the amount.
	seedRefund(t, db, payment.ID, merchant.ID, models.RefundStatusProcessed, 40000)
	refund := seedRefund(t, db, payment.ID, merchant.ID, models.RefundStatusPending, 20000)

	worker := &workers.RefundWorker{
		DB:      db,
		Emitter: &fakeEmitter{},
		Rand:    func() float64 { return 0 },
		Sleep:   noSleep,
		Now:     time.Now,
	}

	err := worker.Handle(context.Background(), refundJob(t, refund.ID))
	require.Error(t, err)
	assert.True(t, utils.IsConflictError(err))
}

func TestRefundWorker_MissingRefundIsNotFound(t *testing.T) {
	db := setupTestDB(t)

	worker := &workers.RefundWorker{
		DB:      db,
		Emitter: &fakeEmitter{},
		Rand:    func() float64 { return 0 },
		Sleep:   noSleep,
		Now:     time.Now,
	}

	err := worker.Handle(context.Background(), refundJob(t, "rfnd_does_not_exist"))
	require.Error(t, err)
	assert.True(t, utils.IsNotFoundError(err))
}

func TestRefundWorker_ProcessesOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	merchant := seedMerchant(t, db, "http://example.com/hook", "whsec")
	payment := seedPayment(t, db, merchant.ID, models.PaymentStatusSuccess, 50000)
	refund := seedRefund(t, db, payment.ID, merchant.ID, models.RefundStatusPending, 20000)

	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	emitter := &fakeEmitter{}
	worker := &workers.RefundWorker{
		DB:      db,
		Emitter: emitter,
		Rand:    func() float64 { return 0 },
		Sleep:   noSleep,
		Now:     func() time.Time { return first },
	}

	require.NoError(t, worker.Handle(context.Background(), refundJob(t, refund.ID)))

	// Redelivery: the guarded update leaves processed_at untouched.
	worker.Now = func() time.Time { return first.Add(time.Hour) }
	require.NoError(t, worker.Handle(context.Background(), refundJob(t, refund.ID)))

	var updated models.Refund
	require.NoError(t, db.First(&updated, "id = ?", refund.ID).Error)
	require.NotNil(t, updated.ProcessedAt)
	assert.Equal(t, first.Unix(), updated.ProcessedAt.Unix())
}
