package client

import (
	"fmt"
	"time"
)

// APIError is a non-200 response from the service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Detail)
}

// JobEntry mirrors a journal entry as returned by the jobs routes.
type JobEntry struct {
	ID              string     `json:"id"`
	SourceName      string     `json:"source_name,omitempty"`
	State           string     `json:"state"`
	ErrorKind       string     `json:"error_kind,omitempty"`
	PassThrough     bool       `json:"pass_through"`
	SampleRate      int        `json:"sample_rate,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	QueuedMillis    int64      `json:"queued_ms"`
	InferenceMillis int64      `json:"inference_ms"`
}
