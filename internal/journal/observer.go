package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-aliabbas/whisper-at-server/internal/dispatch"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
)

// Recorder adapts a Store to the dispatcher's observer interface. Write
// failures are logged and swallowed; the journal never blocks a job.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder wires a store into the dispatcher lifecycle.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{store: store, logger: logger.With(logging.FieldComponent, "journal")}
}

func (r *Recorder) JobQueued(job dispatch.Job) {
	err := r.store.RecordQueued(context.Background(), job.ID, job.SourceName, job.Params,
		job.DurationSeconds, job.SampleRate, job.PassThrough, job.SubmittedAt)
	if err != nil {
		r.logger.Warn("failed to record queued job", logging.FieldJobID, job.ID, logging.Error(err))
	}
}

func (r *Recorder) JobStarted(jobID string, instance int) {
	if err := r.store.RecordStarted(context.Background(), jobID, instance); err != nil {
		r.logger.Warn("failed to record job start", logging.FieldJobID, jobID, logging.Error(err))
	}
}

func (r *Recorder) JobFinished(jobID string, status dispatch.Status, errKind string, queuedFor, ranFor time.Duration) {
	if err := r.store.RecordFinished(context.Background(), jobID, string(status), errKind, queuedFor, ranFor); err != nil {
		r.logger.Warn("failed to record job finish", logging.FieldJobID, jobID, logging.Error(err))
	}
}
