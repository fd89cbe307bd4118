package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/utils"
)

// JobController exposes queue depth counters for operational tooling.
type JobController struct {
	Queues *queue.Manager
}

// JobStatus aggregates the three queues' counters.
// GET /test/jobs/status
func (jc *JobController) JobStatus(c *gin.Context) {
	payment := jc.Queues.Payment.Counts()
	refund := jc.Queues.Refund.Counts()
	webhook := jc.Queues.Webhook.Counts()

	utils.LogDebug("Job status requested")

	c.JSON(200, gin.H{
		"pending":       payment.Waiting + refund.Waiting + webhook.Waiting,
		"processing":    payment.Active + refund.Active + webhook.Active,
		"completed":     payment.Completed + refund.Completed + webhook.Completed,
		"failed":        payment.Failed + refund.Failed + webhook.Failed,
		"worker_status": "running",
		"queues": gin.H{
			jc.Queues.Payment.Name(): payment,
			jc.Queues.Refund.Name():  refund,
			jc.Queues.Webhook.Name(): webhook,
		},
	})
}
