package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/payflow/payflow/config"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
	"github.com/payflow/payflow/workers"
)

func main() {
	if err := utils.InitLogger(); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("Error loading config: %v", err)
		log.Fatal("Error loading config:", err)
	}

	config.InitDB()

	queues := queue.NewManager()

	emitter := workers.NewEmitter(config.DB, queues.Webhook)
	paymentWorker := workers.NewPaymentWorker(config.DB, emitter, cfg)
	refundWorker := workers.NewRefundWorker(config.DB, emitter)
	dispatcher := workers.NewWebhookDispatcher(config.DB, queues.Webhook, cfg)

	queues.Payment.Process(queue.JobProcessPayment, paymentWorker.Handle)
	queues.Refund.Process(queue.JobProcessRefund, refundWorker.Handle)
	queues.Webhook.Process(queue.JobDeliverWebhook, dispatcher.Handle)

	ctx, cancel := context.WithCancel(context.Background())

	scheduler := workers.NewRetryScheduler(config.DB, queues.Webhook)
	go scheduler.Run(ctx)

	utils.LogInfo("Worker started. Waiting for jobs...")
	log.Println("Worker started. Waiting for jobs...")

	// Graceful shutdown: stop the sweep, drain in-flight jobs.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.LogInfo("Shutdown signal received, closing queues...")
	cancel()
	queues.Close()
}
