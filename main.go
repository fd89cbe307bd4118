package main

import (
	"context"
	"log"

	"github.com/payflow/payflow/config"
	"github.com/payflow/payflow/controllers"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/routes"
	"github.com/payflow/payflow/utils"
	"github.com/payflow/payflow/workers"
)

func main() {
	// Initialize logger
	if err := utils.InitLogger(); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	// Load environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("Error loading config: %v", err)
		log.Fatal("Error loading config:", err)
	}

	// Initialize database
	config.InitDB()

	// Seed merchant credentials for fresh deployments
	if err := controllers.CreateSampleMerchant(config.DB); err != nil {
		utils.LogError("Failed to create sample merchant: %v", err)
		log.Fatal("Failed to create sample merchant:", err)
	}

	// The queues are in-process, so the API binary hosts its own manager
	// and registers the worker handlers too; a single-process deployment
	// needs no separate worker binary.
	queues := queue.NewManager()
	defer queues.Close()

	emitter := workers.NewEmitter(config.DB, queues.Webhook)
	paymentWorker := workers.NewPaymentWorker(config.DB, emitter, cfg)
	refundWorker := workers.NewRefundWorker(config.DB, emitter)
	dispatcher := workers.NewWebhookDispatcher(config.DB, queues.Webhook, cfg)

	queues.Payment.Process(queue.JobProcessPayment, paymentWorker.Handle)
	queues.Refund.Process(queue.JobProcessRefund, refundWorker.Handle)
	queues.Webhook.Process(queue.JobDeliverWebhook, dispatcher.Handle)

	scheduler := workers.NewRetryScheduler(config.DB, queues.Webhook)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	// Set up router
	router := routes.SetupRouter(config.DB, queues)

	utils.LogInfo("Server starting on port %s", cfg.Port)
	// Start server
	if err := router.Run(":" + cfg.Port); err != nil {
		utils.LogError("Error starting server: %v", err)
		log.Fatal("Error starting server:", err)
	}
}
