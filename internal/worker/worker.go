package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m-aliabbas/whisper-at-server/internal/config"
	"github.com/m-aliabbas/whisper-at-server/internal/engine"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
)

// Result is the payload written to result:<job_id>.
type Result struct {
	JobID string `json:"job_id"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Worker consumes transcription jobs from a Redis list. A producer pushes a
// job id onto the pending list and stores the raw audio under audio:<id>;
// the worker posts the audio to the service and leaves the text under
// result:<id> with a TTL.
type Worker struct {
	cfg    config.Worker
	rdb    *redis.Client
	svc    Service
	logger *slog.Logger

	retryDelay time.Duration
}

// Service is the part of the HTTP client the worker uses.
type Service interface {
	WaitReady(ctx context.Context, interval time.Duration) error
	TranscribeBytes(ctx context.Context, filename string, audio []byte, params engine.Params) (string, error)
}

// New constructs a worker from configuration.
func New(cfg config.Worker, svc Service, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return &Worker{
		cfg:        cfg,
		rdb:        rdb,
		svc:        svc,
		logger:     logger.With(logging.FieldComponent, "worker"),
		retryDelay: 5 * time.Second,
	}
}

// Close releases the Redis connection.
func (w *Worker) Close() error {
	return w.rdb.Close()
}

// Run blocks consuming jobs until ctx is canceled. It waits for the service
// to report ready before touching the queue.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", w.cfg.RedisAddr, err)
	}
	w.logger.Info("connected to redis", slog.String("addr", w.cfg.RedisAddr))

	if err := w.svc.WaitReady(ctx, time.Second); err != nil {
		return err
	}
	w.logger.Info("worker started, waiting for jobs",
		slog.String("pending_list", w.cfg.PendingList))

	pollTimeout := time.Duration(w.cfg.PollTimeout) * time.Second
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		jobID, err := w.rdb.BRPopLPush(ctx, w.cfg.PendingList, w.cfg.ProcessingList, pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("failed to fetch job from queue", logging.Error(err))
			if !w.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		w.processJob(ctx, jobID)
		if err := w.rdb.LRem(ctx, w.cfg.ProcessingList, 1, jobID).Err(); err != nil && ctx.Err() == nil {
			w.logger.Warn("failed to clear job from processing list",
				logging.FieldJobID, jobID, logging.Error(err))
		}
	}
}

func (w *Worker) processJob(ctx context.Context, jobID string) {
	logger := w.logger.With(logging.FieldJobID, jobID)

	audio, err := w.rdb.Get(ctx, "audio:"+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		logger.Warn("no audio stored for job, skipping")
		return
	}
	if err != nil {
		logger.Error("failed to read audio for job", logging.Error(err))
		return
	}

	text, err := w.svc.TranscribeBytes(ctx, "audio.wav", audio, engine.DefaultParams())
	if err != nil {
		logger.Error("job failed", logging.Error(err))
		w.storeResult(ctx, jobID, Result{JobID: jobID, Error: err.Error()})
		return
	}

	w.storeResult(ctx, jobID, Result{JobID: jobID, Text: text})
	logger.Info("job completed")
}

func (w *Worker) storeResult(ctx context.Context, jobID string, result Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		w.logger.Error("failed to marshal result", logging.FieldJobID, jobID, logging.Error(err))
		return
	}
	ttl := time.Duration(w.cfg.ResultTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := w.rdb.SetEx(ctx, "result:"+jobID, payload, ttl).Err(); err != nil {
		w.logger.Error("failed to store result", logging.FieldJobID, jobID, logging.Error(err))
	}
}

func (w *Worker) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(w.retryDelay):
		return true
	}
}
