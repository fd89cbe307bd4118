package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
	"github.com/payflow/payflow/workers"
)

// idAllocationRetries bounds regenerate-on-conflict loops. With a 64-bit
// random ID space a second collision in a row is practically unreachable.
const idAllocationRetries = 5

// PaymentController handles payment creation, lookup and capture.
type PaymentController struct {
	DB     *gorm.DB
	Queues *queue.Manager
}

// CreatePaymentRequest is the payment creation body.
type CreatePaymentRequest struct {
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Method     string `json:"method"`
	VPA        string `json:"vpa"`
	CardNumber string `json:"card_number"`
	CardHolder string `json:"card_holder"`
	CardExpiry string `json:"card_expiry"`
	CardCVV    string `json:"card_cvv"`
}

// CreatePayment creates a pending payment and enqueues it for processing.
// POST /v1/payments
func (pc *PaymentController) CreatePayment(c *gin.Context) {
	merchant := c.MustGet("merchant").(models.Merchant)

	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey != "" {
		cached, err := utils.CheckIdempotencyKey(pc.DB, idempotencyKey, merchant.ID)
		if err != nil {
			utils.LogError("Idempotency lookup failed for merchant %s: %v", merchant.ID, err)
			utils.InternalServerError(c, "An internal error occurred")
			return
		}
		if cached != nil {
			utils.LogInfo("Replaying idempotent payment creation for merchant %s", merchant.ID)
			c.Data(201, "application/json", cached)
			return
		}
	}

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body")
		return
	}

	if req.OrderID == "" || req.Method == "" {
		utils.BadRequest(c, "order_id and method are required")
		return
	}

	switch req.Method {
	case models.PaymentMethodUPI:
		if req.VPA == "" {
			utils.BadRequest(c, "vpa is required for UPI payments")
			return
		}
	case models.PaymentMethodCard:
		if req.CardNumber == "" || req.CardHolder == "" || req.CardExpiry == "" || req.CardCVV == "" {
			utils.BadRequest(c, "card_number, card_holder, card_expiry, and card_cvv are required for card payments")
			return
		}
	default:
		utils.BadRequest(c, "method must be upi or card")
		return
	}

	amount := req.Amount
	if amount <= 0 {
		amount = utils.DefaultPaymentAmount
	}
	currency := req.Currency
	if currency == "" {
		currency = utils.DefaultCurrency
	}

	payment := models.Payment{
		MerchantID: merchant.ID,
		OrderID:    req.OrderID,
		Amount:     amount,
		Currency:   currency,
		Method:     req.Method,
		VPA:        req.VPA,
		CardNumber: req.CardNumber,
		CardHolder: req.CardHolder,
		CardExpiry: req.CardExpiry,
		CardCVV:    req.CardCVV,
		Status:     models.PaymentStatusPending,
	}

	var err error
	for i := 0; i < idAllocationRetries; i++ {
		payment.ID = utils.GenerateID(utils.PaymentIDPrefix)
		err = pc.DB.Create(&payment).Error
		if !utils.IsDuplicateKeyErr(err) {
			break
		}
		utils.LogInfo("Payment ID collision on %s, regenerating", payment.ID)
	}
	if err != nil {
		utils.LogError("Failed to create payment for merchant %s: %v", merchant.ID, err)
		utils.InternalServerError(c, "Failed to create payment")
		return
	}

	_, err = pc.Queues.Payment.Enqueue(c.Request.Context(), queue.JobProcessPayment, workers.PaymentJobPayload{PaymentID: payment.ID})
	if err != nil {
		utils.LogError("Failed to enqueue payment %s: %v", payment.ID, err)
		utils.InternalServerError(c, "Failed to schedule payment processing")
		return
	}

	utils.LogInfo("Created payment %s for merchant %s", payment.ID, merchant.ID)

	response := gin.H{
		"id":         payment.ID,
		"order_id":   payment.OrderID,
		"amount":     payment.Amount,
		"currency":   payment.Currency,
		"method":     payment.Method,
		"vpa":        payment.VPA,
		"status":     payment.Status,
		"created_at": payment.CreatedAt,
	}

	if idempotencyKey != "" {
		if err := utils.StoreIdempotencyKey(pc.DB, idempotencyKey, merchant.ID, response); err != nil {
			utils.LogError("Failed to store idempotency key for merchant %s: %v", merchant.ID, err)
		}
	}

	c.JSON(201, response)
}

// GetPayment returns a payment owned by the calling merchant.
// GET /v1/payments/:payment_id
func (pc *PaymentController) GetPayment(c *gin.Context) {
	merchant := c.MustGet("merchant").(models.Merchant)

	var payment models.Payment
	err := pc.DB.First(&payment, "id = ? AND merchant_id = ?", c.Param("payment_id"), merchant.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.NotFound(c, "Payment not found")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "An internal error occurred")
		return
	}

	c.JSON(200, gin.H{
		"id":                payment.ID,
		"order_id":          payment.OrderID,
		"amount":            payment.Amount,
		"currency":          payment.Currency,
		"method":            payment.Method,
		"vpa":               payment.VPA,
		"status":            payment.Status,
		"captured":          payment.Captured,
		"error_code":        payment.ErrorCode,
		"error_description": payment.ErrorDescription,
		"created_at":        payment.CreatedAt,
		"updated_at":        payment.UpdatedAt,
	})
}

// CapturePayment marks a successful payment as captured, once.
// POST /v1/payments/:payment_id/capture
func (pc *PaymentController) CapturePayment(c *gin.Context) {
	merchant := c.MustGet("merchant").(models.Merchant)

	var payment models.Payment
	err := pc.DB.First(&payment, "id = ? AND merchant_id = ?", c.Param("payment_id"), merchant.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.NotFound(c, "Payment not found")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "An internal error occurred")
		return
	}

	if payment.Status != models.PaymentStatusSuccess {
		utils.BadRequest(c, "Payment not in capturable state")
		return
	}

	if payment.Captured {
		utils.BadRequest(c, "Payment already captured")
		return
	}

	// Guarded update keeps capture one-time under concurrent requests.
	res := pc.DB.Model(&models.Payment{}).
		Where("id = ? AND status = ? AND captured = ?", payment.ID, models.PaymentStatusSuccess, false).
		Update("captured", true)
	if res.Error != nil {
		utils.LogError("Failed to capture payment %s: %v", payment.ID, res.Error)
		utils.InternalServerError(c, "Failed to capture payment")
		return
	}
	if res.RowsAffected == 0 {
		utils.BadRequest(c, "Payment already captured")
		return
	}

	utils.LogInfo("Captured payment %s", payment.ID)

	var updated models.Payment
	if err := pc.DB.First(&updated, "id = ?", payment.ID).Error; err != nil {
		utils.InternalServerError(c, "An internal error occurred")
		return
	}

	c.JSON(200, gin.H{
		"id":         updated.ID,
		"order_id":   updated.OrderID,
		"amount":     updated.Amount,
		"currency":   updated.Currency,
		"method":     updated.Method,
		"status":     updated.Status,
		"captured":   updated.Captured,
		"created_at": updated.CreatedAt,
		"updated_at": updated.UpdatedAt,
	})
}
