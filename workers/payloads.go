package workers

import (
	"encoding/json"
)

// PaymentJobPayload is carried by process-payment jobs.
type PaymentJobPayload struct {
	PaymentID string `json:"paymentId"`
}

// RefundJobPayload is carried by process-refund jobs.
type RefundJobPayload struct {
	RefundID string `json:"refundId"`
}

// WebhookJobPayload is carried by deliver-webhook jobs. Payload holds the
// exact serialized webhook body; the signature is computed over these bytes.
// LogID is a hint: when present the dispatcher updates that log row, when
// absent it creates a fresh one. The log row, not the job, is authoritative
// for delivery progress.
type WebhookJobPayload struct {
	MerchantID string          `json:"merchantId"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	LogID      *uint           `json:"logId,omitempty"`
}
