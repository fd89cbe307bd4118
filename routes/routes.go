package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/payflow/payflow/controllers"
	"github.com/payflow/payflow/middleware"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
	"github.com/payflow/payflow/workers"
)

// SetupRouter initializes and returns the Gin router with all routes
func SetupRouter(db *gorm.DB, queues *queue.Manager) *gin.Engine {
	router := gin.New()

	router.Use(utils.LoggerMiddleware())
	router.Use(utils.CORSMiddleware())
	router.Use(utils.RecoveryMiddleware())
	router.Use(utils.RequestIDMiddleware())

	emitter := workers.NewEmitter(db, queues.Webhook)

	paymentController := &controllers.PaymentController{DB: db, Queues: queues}
	refundController := &controllers.RefundController{DB: db, Queues: queues, Emitter: emitter}
	webhookController := &controllers.WebhookController{DB: db, Queues: queues}
	jobController := &controllers.JobController{Queues: queues}

	api := router.Group("/v1")
	api.Use(middleware.APIAuthMiddleware(db))
	{
		api.POST("/payments", paymentController.CreatePayment)
		api.GET("/payments/:payment_id", paymentController.GetPayment)
		api.POST("/payments/:payment_id/capture", paymentController.CapturePayment)
		api.POST("/payments/:payment_id/refunds", refundController.CreateRefund)

		api.GET("/refunds/:refund_id", refundController.GetRefund)

		api.GET("/webhooks", webhookController.ListWebhookLogs)
		api.POST("/webhooks/:webhook_id/retry", webhookController.RetryWebhook)
	}

	// Unauthenticated status endpoint for operational tooling
	router.GET("/test/jobs/status", jobController.JobStatus)

	return router
}
