package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/vidurl/models"
	"github.com/use-agent/vidurl/webhook"
)

// jobTTL is how long finished and pending jobs stay queryable.
const jobTTL = time.Hour

// BatchQueue runs async batches one at a time on a single worker goroutine
// and keeps their results around for polling.
type BatchQueue struct {
	runner Runner
	queue  chan *models.BatchJob
	jobs   sync.Map // job ID -> *models.BatchJob

	// deliver sends the completion webhook; swapped out in tests.
	deliver func(url, secret string, event *webhook.Event)
}

// NewBatchQueue creates a queue that holds at most capacity pending jobs.
func NewBatchQueue(runner Runner, capacity int) *BatchQueue {
	return &BatchQueue{
		runner:  runner,
		queue:   make(chan *models.BatchJob, capacity),
		deliver: webhook.DeliverAsync,
	}
}

// Start runs the worker and the expiry loop until ctx is done.
func (q *BatchQueue) Start(ctx context.Context) {
	go q.work(ctx)
	go q.expireLoop(ctx)
}

// Submit enqueues job. It reports false when the queue is full.
func (q *BatchQueue) Submit(job *models.BatchJob) bool {
	q.jobs.Store(job.ID, job)
	select {
	case q.queue <- job:
		return true
	default:
		q.jobs.Delete(job.ID)
		return false
	}
}

// Get looks up a job by ID.
func (q *BatchQueue) Get(id string) (*models.BatchJob, bool) {
	v, ok := q.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.BatchJob), true
}

func (q *BatchQueue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.queue:
			q.runJob(ctx, job)
		}
	}
}

func (q *BatchQueue) runJob(ctx context.Context, job *models.BatchJob) {
	job.SetStatus(models.BatchProcessing)
	slog.Info("batch started", "job_id", job.ID, "ids", len(job.IDs))

	results := q.runner.Run(ctx, job.IDs)
	job.Complete(results)
	slog.Info("batch completed",
		"job_id", job.ID,
		"total", results.Len(),
		"failed", results.Failed(),
	)

	if job.WebhookURL != "" {
		snapshot := job.Snapshot()
		q.deliver(job.WebhookURL, job.WebhookSecret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data:      snapshot,
		})
	}
}

func (q *BatchQueue) expireLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			q.expire(now)
		}
	}
}

// expire drops jobs created more than jobTTL before now.
func (q *BatchQueue) expire(now time.Time) {
	cutoff := now.Add(-jobTTL).Unix()
	q.jobs.Range(func(key, value any) bool {
		if value.(*models.BatchJob).CreatedAt < cutoff {
			q.jobs.Delete(key)
		}
		return true
	})
}

// PostBatch returns a handler for POST /api/v1/batch.
// It validates the request and queues the job; results are fetched with
// GetBatch or delivered to the webhook.
func PostBatch(q *BatchQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.BatchResponse{
				Status: "failed",
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		job := models.NewBatchJob("batch-"+randomID(), req, time.Now().Unix())
		if !q.Submit(job) {
			c.JSON(http.StatusServiceUnavailable, models.BatchResponse{
				Status: "failed",
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "batch queue is full, retry later",
				},
			})
			return
		}

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: models.BatchQueued,
			Total:  len(req.IDs),
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(q *BatchQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := q.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "batch job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}

// randomID generates a short random hex string for job IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
