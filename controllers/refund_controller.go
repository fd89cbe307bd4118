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

// RefundController handles refund creation and lookup.
type RefundController struct {
	DB      *gorm.DB
	Queues  *queue.Manager
	Emitter workers.WebhookEmitter
}

// CreateRefundRequest is the refund creation body.
type CreateRefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// CreateRefund creates a pending refund against a successful payment and
// enqueues it for processing. The amount check and insert run in one
// transaction holding the payment row, so concurrent refunds cannot jointly
// overspend the payment.
// POST /v1/payments/:payment_id/refunds
func (rc *RefundController) CreateRefund(c *gin.Context) {
	merchant := c.MustGet("merchant").(models.Merchant)
	paymentID := c.Param("payment_id")

	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body")
		return
	}

	if req.Amount <= 0 {
		utils.BadRequest(c, "Valid amount is required")
		return
	}

	refund := models.Refund{
		PaymentID:  paymentID,
		MerchantID: merchant.ID,
		Amount:     req.Amount,
		Reason:     req.Reason,
		Status:     models.RefundStatusPending,
	}

	txErr := rc.DB.Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := utils.LockForUpdate(tx).First(&payment, "id = ? AND merchant_id = ?", paymentID, merchant.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFoundError("Payment not found", err)
		}
		if err != nil {
			return err
		}

		if payment.Status != models.PaymentStatusSuccess {
			return utils.BadRequestError("Payment not in refundable state", nil)
		}

		var total int64
		err = tx.Model(&models.Refund{}).
			Where("payment_id = ? AND status IN ?", paymentID, []string{models.RefundStatusPending, models.RefundStatusProcessed}).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&total).Error
		if err != nil {
			return err
		}

		if req.Amount+total > payment.Amount {
			return utils.BadRequestError("Refund amount exceeds available amount", nil)
		}

		var insertErr error
		for i := 0; i < idAllocationRetries; i++ {
			refund.ID = utils.GenerateID(utils.RefundIDPrefix)
			insertErr = tx.Create(&refund).Error
			if !utils.IsDuplicateKeyErr(insertErr) {
				break
			}
			utils.LogInfo("Refund ID collision on %s, regenerating", refund.ID)
		}
		return insertErr
	})
	if txErr != nil {
		if appErr := utils.GetAppError(txErr); appErr != nil {
			if utils.IsNotFoundError(txErr) {
				utils.NotFound(c, appErr.Message)
			} else {
				utils.BadRequest(c, appErr.Message)
			}
			return
		}
		utils.LogError("Failed to create refund for payment %s: %v", paymentID, txErr)
		utils.InternalServerError(c, "Failed to create refund")
		return
	}

	_, err := rc.Queues.Refund.Enqueue(c.Request.Context(), queue.JobProcessRefund, workers.RefundJobPayload{RefundID: refund.ID})
	if err != nil {
		utils.LogError("Failed to enqueue refund %s: %v", refund.ID, err)
		utils.InternalServerError(c, "Failed to schedule refund processing")
		return
	}

	_, err = rc.Emitter.Emit(c.Request.Context(), merchant.ID, "refund.created", map[string]interface{}{
		"refund": map[string]interface{}{
			"id":         refund.ID,
			"payment_id": refund.PaymentID,
			"amount":     refund.Amount,
			"reason":     refund.Reason,
			"status":     refund.Status,
			"created_at": refund.CreatedAt,
		},
	})
	if err != nil {
		utils.LogError("Failed to emit refund.created for %s: %v", refund.ID, err)
	}

	utils.LogInfo("Created refund %s for payment %s", refund.ID, paymentID)

	c.JSON(201, gin.H{
		"id":         refund.ID,
		"payment_id": refund.PaymentID,
		"amount":     refund.Amount,
		"reason":     refund.Reason,
		"status":     refund.Status,
		"created_at": refund.CreatedAt,
	})
}

// GetRefund returns a refund owned by the calling merchant.
// GET /v1/refunds/:refund_id
func (rc *RefundController) GetRefund(c *gin.Context) {
	merchant := c.MustGet("merchant").(models.Merchant)

	var refund models.Refund
	err := rc.DB.First(&refund, "id = ? AND merchant_id = ?", c.Param("refund_id"), merchant.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.NotFound(c, "Refund not found")
		return
	}
	if err != nil {
		utils.InternalServerError(c, "An internal error occurred")
		return
	}

	c.JSON(200, gin.H{
		"id":           refund.ID,
		"payment_id":   refund.PaymentID,
		"amount":       refund.Amount,
		"reason":       refund.Reason,
		"status":       refund.Status,
		"created_at":   refund.CreatedAt,
		"processed_at": refund.ProcessedAt,
	})
}
