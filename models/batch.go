package models

import "sync"

// Batch job statuses.
const (
	BatchQueued     = "queued"
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
)

// BatchResponse is the immediate response for POST /api/v1/batch.
type BatchResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Total  int          `json:"total"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID      string  `json:"id"`
	Status  string  `json:"status"`
	Total   int     `json:"total"`
	Failed  int     `json:"failed"`
	Results *Result `json:"results,omitempty"`
}

// BatchJob tracks an async batch. Its fields are guarded by the embedded
// mutex because the worker goroutine updates them while handlers read.
type BatchJob struct {
	mu sync.RWMutex

	ID            string
	IDs           []string
	WebhookURL    string
	WebhookSecret string
	CreatedAt     int64 // unix timestamp

	status  string
	results *Result
}

// NewBatchJob creates a queued job for ids.
func NewBatchJob(id string, req BatchRequest, createdAt int64) *BatchJob {
	return &BatchJob{
		ID:            id,
		IDs:           req.IDs,
		WebhookURL:    req.WebhookURL,
		WebhookSecret: req.WebhookSecret,
		CreatedAt:     createdAt,
		status:        BatchQueued,
	}
}

// SetStatus updates the job status.
func (j *BatchJob) SetStatus(status string) {
	j.mu.Lock()
	j.status = status
	j.mu.Unlock()
}

// Complete stores the results and marks the job completed.
func (j *BatchJob) Complete(results *Result) {
	j.mu.Lock()
	j.results = results
	j.status = BatchCompleted
	j.mu.Unlock()
}

// Snapshot returns the API view of the job.
func (j *BatchJob) Snapshot() BatchStatusResponse {
	j.mu.RLock()
	defer j.mu.RUnlock()

	resp := BatchStatusResponse{
		ID:     j.ID,
		Status: j.status,
		Total:  len(j.IDs),
	}
	if j.results != nil {
		resp.Results = j.results
		resp.Total = j.results.Len()
		resp.Failed = j.results.Failed()
	}
	return resp
}
