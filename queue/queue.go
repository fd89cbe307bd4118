// Package queue provides named in-process work queues with per-job retry,
// exponential backoff and delayed scheduling. Queues are injected into the
// components that use them so tests can substitute their own instances.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/payflow/payflow/utils"
)

// Job is a unit of work delivered to a handler. Payload carries raw JSON;
// each worker decodes its own payload shape. Attempt is 1-based.
type Job struct {
	ID      string
	Type    string
	Payload json.RawMessage
	Attempt int
}

// Handler processes one job. A non-nil error triggers redelivery while the
// queue's attempt budget lasts; after that the job is marked failed.
type Handler func(ctx context.Context, job Job) error

// Backoff controls the delay between automatic redeliveries. Only
// exponential backoff is supported: baseDelay * 2^(attempt-1).
type Backoff struct {
	BaseDelay time.Duration
}

// Options fixes a queue's retry policy at construction time.
type Options struct {
	// Attempts is the maximum number of automatic deliveries per job.
	Attempts int
	// Backoff spaces redeliveries after a failed attempt.
	Backoff Backoff
	// Concurrency is the number of goroutines consuming the queue.
	Concurrency int
}

// Counts is a snapshot of a queue's job counters.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// EnqueueOption customizes a single enqueue call.
type EnqueueOption func(*enqueueConfig)

type enqueueConfig struct {
	delay time.Duration
}

// WithDelay makes the job eligible for delivery only after d has elapsed.
func WithDelay(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) {
		if d > 0 {
			c.delay = d
		}
	}
}

type delivery struct {
	job Job
}

// Queue is a single named work queue.
type Queue struct {
	name string
	opts Options

	mu       sync.RWMutex
	handlers map[string]Handler

	jobs   chan delivery
	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool

	waiting   atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a queue and starts its consumers.
func New(name string, opts Options) *Queue {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}

	q := &Queue{
		name:     name,
		opts:     opts,
		handlers: make(map[string]Handler),
		jobs:     make(chan delivery, 1024),
		done:     make(chan struct{}),
	}

	for i := 0; i < opts.Concurrency; i++ {
		q.wg.Add(1)
		go q.consume()
	}

	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue persists a job and makes it visible to consumers, after the
// optional delay. The payload is serialized to JSON.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload interface{}, opts ...EnqueueOption) (string, error) {
	if q.closed.Load() {
		return "", fmt.Errorf("queue %s is closed", q.name)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload for %s: %w", jobType, err)
	}

	var cfg enqueueConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	job := Job{
		ID:      uuid.New().String(),
		Type:    jobType,
		Payload: body,
		Attempt: 1,
	}

	q.waiting.Add(1)

	if cfg.delay > 0 {
		q.schedule(job, cfg.delay)
		return job.ID, nil
	}

	select {
	case q.jobs <- delivery{job: job}:
	case <-q.done:
		q.waiting.Add(-1)
		return "", fmt.Errorf("queue %s is closed", q.name)
	case <-ctx.Done():
		q.waiting.Add(-1)
		return "", ctx.Err()
	}

	return job.ID, nil
}

// Process registers the handler for a job type. Jobs of an unregistered type
// are counted as failed.
func (q *Queue) Process(jobType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Counts returns a snapshot of the queue's counters.
func (q *Queue) Counts() Counts {
	return Counts{
		Waiting:   q.waiting.Load(),
		Active:    q.active.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

// Close stops intake and waits for in-flight handlers. Delayed jobs that
// have not fired yet are dropped; the log rows they reference remain
// authoritative and the retry sweep picks them up after a restart.
func (q *Queue) Close() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	close(q.done)
	q.wg.Wait()
}

func (q *Queue) schedule(job Job, delay time.Duration) {
	time.AfterFunc(delay, func() {
		select {
		case q.jobs <- delivery{job: job}:
		case <-q.done:
			q.waiting.Add(-1)
		}
	})
}

func (q *Queue) consume() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case d := <-q.jobs:
			q.run(d.job)
		}
	}
}

func (q *Queue) run(job Job) {
	q.waiting.Add(-1)
	q.active.Add(1)
	defer q.active.Add(-1)

	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()

	if !ok {
		utils.LogError("Queue %s: no handler registered for job type %s", q.name, job.Type)
		q.failed.Add(1)
		return
	}

	err := handler(context.Background(), job)
	if err == nil {
		q.completed.Add(1)
		return
	}

	utils.LogError("Queue %s: job %s (%s) attempt %d failed: %v", q.name, job.ID, job.Type, job.Attempt, err)

	if job.Attempt >= q.opts.Attempts {
		// Attempt budget exhausted; the failure stays visible in the
		// counters for operational inspection.
		q.failed.Add(1)
		return
	}

	next := job
	next.Attempt++
	q.waiting.Add(1)
	q.schedule(next, q.redeliveryDelay(job.Attempt))
}

func (q *Queue) redeliveryDelay(attempt int) time.Duration {
	if q.opts.Backoff.BaseDelay <= 0 {
		return 0
	}
	return q.opts.Backoff.BaseDelay * time.Duration(1<<(attempt-1))
}
