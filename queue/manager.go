package queue

import (
	"time"
)

// Queue and job type names shared by the API and worker processes.
const (
	PaymentQueueName = "payment-processing"
	RefundQueueName  = "refund-processing"
	WebhookQueueName = "webhook-delivery"

	JobProcessPayment = "process-payment"
	JobProcessRefund  = "process-refund"
	JobDeliverWebhook = "deliver-webhook"
)

// Manager owns the three named queues. It is passed explicitly to workers,
// controllers and the webhook emitter rather than living as a package global.
type Manager struct {
	Payment *Queue
	Refund  *Queue
	Webhook *Queue
}

// NewManager creates the gateway's queues with their retry policies.
// Payment and refund processing retry automatically with exponential backoff;
// webhook delivery gets a single attempt because the dispatcher owns its own
// business-specified retry schedule.
func NewManager() *Manager {
	return &Manager{
		Payment: New(PaymentQueueName, Options{
			Attempts: 3,
			Backoff:  Backoff{BaseDelay: 2 * time.Second},
		}),
		Refund: New(RefundQueueName, Options{
			Attempts: 3,
			Backoff:  Backoff{BaseDelay: 2 * time.Second},
		}),
		Webhook: New(WebhookQueueName, Options{
			Attempts: 1,
		}),
	}
}

// Close shuts the queues down, draining in-flight jobs.
func (m *Manager) Close() {
	m.Payment.Close()
	m.Refund.Close()
	m.Webhook.Close()
}
