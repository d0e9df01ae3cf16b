package model

import "time"

const (
	JobStatusQueued      = "Queued"
	JobStatusProcessing  = "Processing"
	JobStatusCompleted   = "Completed"
	JobStatusFailed      = "Failed"
	JobStatusRateLimited = "RateLimited" // gave up after repeated 429s; submission left as-is
)

type VerificationJob struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts"`
	LastError    *string   `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
