package journal

import "time"

// Entry is one job's lifecycle record. The journal stores metadata only;
// audio bytes and transcript text never touch the database.
type Entry struct {
	ID                string     `json:"id"`
	SourceName        string     `json:"source_name,omitempty"`
	State             string     `json:"state"`
	ErrorKind         string     `json:"error_kind,omitempty"`
	PassThrough       bool       `json:"pass_through"`
	SampleRate        int        `json:"sample_rate,omitempty"`
	DurationSeconds   float64    `json:"duration_seconds,omitempty"`
	AtTimeRes         int        `json:"at_time_res"`
	Temperature       float64    `json:"temperature"`
	NoSpeechThreshold float64    `json:"no_speech_threshold"`
	Instance          int        `json:"instance"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	QueuedMillis      int64      `json:"queued_ms"`
	InferenceMillis   int64      `json:"inference_ms"`
}

// Summary aggregates journal state for the status endpoint.
type Summary struct {
	Total    int `json:"total"`
	Queued   int `json:"queued"`
	Running  int `json:"running"`
	Done     int `json:"done"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}
