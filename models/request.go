package models

// FetchRequest is the payload for POST /api/v1/fetch.
type FetchRequest struct {
	// IDs are the video identifiers to resolve, in output order. Required.
	IDs []string `json:"ids" binding:"required,min=1,max=100"`
}

// BatchRequest is the payload for POST /api/v1/batch.
type BatchRequest struct {
	// IDs are the video identifiers to resolve, in output order. Required.
	IDs []string `json:"ids" binding:"required,min=1,max=100"`

	// WebhookURL receives a batch.completed event when the job finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
