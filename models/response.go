package models

// FetchResponse is the response for POST /api/v1/fetch.
type FetchResponse struct {
	// Success is false only when the batch could not run at all.
	Success bool `json:"success"`

	// Results maps each requested identifier to its URL or FailureSentinel.
	Results *Result `json:"results,omitempty"`

	// Total is the number of distinct identifiers in Results.
	Total int `json:"total"`

	// Failed is the number of identifiers that resolved to FailureSentinel.
	Failed int `json:"failed"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo reports how long a request took.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string       `json:"status"` // "healthy" or "busy"
	Uptime  string       `json:"uptime"`
	Session SessionStats `json:"session"`
	Version string       `json:"version"`
}

// SessionStats reports what the browser session has done so far.
type SessionStats struct {
	Busy      bool  `json:"busy"`
	Batches   int64 `json:"batches"`
	Processed int64 `json:"processed"`
	Failures  int64 `json:"failures"`
}
