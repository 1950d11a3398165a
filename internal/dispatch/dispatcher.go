package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m-aliabbas/whisper-at-server/internal/engine"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
	"github.com/m-aliabbas/whisper-at-server/internal/services"
)

// Engine runs a single transcription. The dispatcher guarantees at most one
// in-flight call per Engine value it was constructed with.
type Engine interface {
	Transcribe(ctx context.Context, wavPath string, params engine.Params) (engine.Result, error)
}

// Observer receives job lifecycle notifications. JobQueued runs on the
// submitting goroutine before the job is visible to any consumer, so a
// journaling observer always records the enqueue ahead of the start and
// finish events. The other callbacks run on dispatcher goroutines.
type Observer interface {
	JobQueued(job Job)
	JobStarted(jobID string, instance int)
	JobFinished(jobID string, status Status, errKind string, queuedFor, ranFor time.Duration)
}

// Stats is a point-in-time snapshot of dispatcher activity.
type Stats struct {
	Queued    int   `json:"queued"`
	Running   int   `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Canceled  int64 `json:"canceled"`
}

// Dispatcher owns the bounded FIFO of transcription jobs and the worker
// goroutines that feed them to model instances one at a time.
type Dispatcher struct {
	engines      []Engine
	capacity     int
	awaitTimeout time.Duration
	logger       *slog.Logger
	observer     Observer

	mu       sync.Mutex
	queue    []*Pending
	reserved int
	running  int
	accepted bool
	stats    struct {
		completed int64
		failed    int64
		canceled  int64
	}

	notify chan struct{}
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver registers a lifecycle observer.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

// New builds a dispatcher over the given model instances. Capacity bounds the
// number of jobs waiting for an instance; awaitTimeout caps how long Await
// will block before abandoning a job.
func New(engines []Engine, capacity int, awaitTimeout time.Duration, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if len(engines) == 0 {
		return nil, errors.New("dispatch: at least one engine instance required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("dispatch: capacity must be positive, got %d", capacity)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Dispatcher{
		engines:      engines,
		capacity:     capacity,
		awaitTimeout: awaitTimeout,
		logger:       logger.With(logging.FieldComponent, "dispatch"),
		notify:       make(chan struct{}, capacity),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start launches one consumer goroutine per engine instance. It returns
// immediately; jobs submitted before Start wait in the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.stop = cancel
	d.accepted = true
	d.mu.Unlock()
	for i, eng := range d.engines {
		d.wg.Add(1)
		go d.runInstance(runCtx, i, eng)
	}
}

// Stop halts the consumers and resolves every still-queued job with an
// unavailable error. In-flight inferences are interrupted through their
// context.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	stop := d.stop
	d.accepted = false
	d.mu.Unlock()
	if stop != nil {
		stop()
	}
	d.wg.Wait()

	d.mu.Lock()
	drained := d.queue
	d.queue = nil
	d.mu.Unlock()
	for _, p := range drained {
		if p.markCanceled() == StatusQueued {
			p.resolve(engine.Result{}, services.Wrap(services.ErrUnavailable, "dispatch", "stop", "dispatcher shutting down", nil))
			d.finish(p, StatusCanceled, services.ErrUnavailable)
		}
	}
}

// Submit enqueues a job. It never blocks: when the queue is at capacity it
// fails immediately with services.ErrQueueFull so the caller can shed load.
func (d *Dispatcher) Submit(job Job) (*Pending, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	if job.AudioPath == "" {
		return nil, services.Wrap(services.ErrValidation, "dispatch", "submit", "job has no audio path", nil)
	}
	if err := job.Params.Validate(); err != nil {
		return nil, err
	}

	p := newPending(&job)
	d.mu.Lock()
	if !d.accepted {
		d.mu.Unlock()
		return nil, services.Wrap(services.ErrUnavailable, "dispatch", "submit", "dispatcher not accepting jobs", nil)
	}
	if len(d.queue)+d.reserved >= d.capacity {
		d.mu.Unlock()
		return nil, services.Wrap(services.ErrQueueFull, "dispatch", "submit", fmt.Sprintf("queue at capacity %d", d.capacity), nil)
	}
	d.reserved++
	d.mu.Unlock()

	// The observer sees the enqueue before any start or finish event for the
	// job, so the slot is held while it runs and the job published after.
	if d.observer != nil {
		d.observer.JobQueued(job)
	}

	d.mu.Lock()
	d.reserved--
	if !d.accepted {
		d.mu.Unlock()
		p.markCanceled()
		d.finish(p, StatusCanceled, services.ErrUnavailable)
		return nil, services.Wrap(services.ErrUnavailable, "dispatch", "submit", "dispatcher not accepting jobs", nil)
	}
	d.queue = append(d.queue, p)
	depth := len(d.queue)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}

	d.logger.Info("job queued",
		logging.FieldJobID, job.ID,
		slog.String("source", job.SourceName),
		slog.Int("queue_depth", depth))
	return p, nil
}

// Await blocks until the job resolves. The dispatcher's await timeout is a
// hard ceiling even when the caller's context would allow longer. If the
// caller gives up, the job is canceled: removed from the queue when still
// waiting, or left to finish with its result discarded when already running.
func (d *Dispatcher) Await(ctx context.Context, p *Pending) (engine.Result, error) {
	if d.awaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.awaitTimeout)
		defer cancel()
	}
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		d.cancel(p)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return engine.Result{}, services.Wrap(services.ErrTimeout, "dispatch", "await", "job exceeded await timeout", ctx.Err())
		}
		return engine.Result{}, services.Wrap(services.ErrCanceled, "dispatch", "await", "caller abandoned job", ctx.Err())
	}
}

// Cancel abandons a job without waiting on it.
func (d *Dispatcher) Cancel(p *Pending) {
	d.cancel(p)
}

func (d *Dispatcher) cancel(p *Pending) {
	previous := p.markCanceled()
	switch previous {
	case StatusQueued:
		d.removeQueued(p)
		p.resolve(engine.Result{}, services.Wrap(services.ErrCanceled, "dispatch", "cancel", "job canceled before inference", nil))
		d.finish(p, StatusCanceled, services.ErrCanceled)
		d.logger.Info("job canceled while queued", logging.FieldJobID, p.job.ID)
	case StatusRunning:
		p.resolve(engine.Result{}, services.Wrap(services.ErrCanceled, "dispatch", "cancel", "job canceled during inference", nil))
		d.logger.Info("job canceled while running, result will be discarded", logging.FieldJobID, p.job.ID)
	}
}

func (d *Dispatcher) removeQueued(p *Pending) {
	d.mu.Lock()
	for i, queued := range d.queue {
		if queued == p {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

// QueueLength reports how many jobs are waiting for an instance.
func (d *Dispatcher) QueueLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Snapshot returns current dispatcher statistics.
func (d *Dispatcher) Snapshot() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Queued:    len(d.queue),
		Running:   d.running,
		Completed: d.stats.completed,
		Failed:    d.stats.failed,
		Canceled:  d.stats.canceled,
	}
}

func (d *Dispatcher) runInstance(ctx context.Context, instance int, eng Engine) {
	defer d.wg.Done()
	logger := d.logger.With(slog.Int("instance", instance))
	for {
		p := d.next(ctx)
		if p == nil {
			return
		}
		if d.observer != nil {
			d.observer.JobStarted(p.job.ID, instance)
		}
		logger.Info("job started", logging.FieldJobID, p.job.ID)
		d.execute(ctx, eng, p, logger)
	}
}

// next pops the oldest live job, skipping entries canceled while queued.
func (d *Dispatcher) next(ctx context.Context) *Pending {
	for {
		d.mu.Lock()
		for len(d.queue) > 0 {
			p := d.queue[0]
			d.queue = d.queue[1:]
			if !p.tryStart() {
				continue
			}
			d.running++
			d.mu.Unlock()
			return p
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-d.notify:
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, eng Engine, p *Pending, logger *slog.Logger) {
	jobCtx := services.WithJobID(ctx, p.job.ID)
	started := time.Now()
	result, err := eng.Transcribe(jobCtx, p.job.AudioPath, p.job.Params)
	elapsed := time.Since(started)

	d.mu.Lock()
	d.running--
	d.mu.Unlock()

	final := StatusDone
	if err != nil {
		final = StatusFailed
	}
	if p.settle(final) == StatusCanceled {
		logger.Info("job finished after cancellation, discarding result",
			logging.FieldJobID, p.job.ID,
			slog.Duration("took", elapsed))
		d.finish(p, StatusCanceled, services.ErrCanceled)
		return
	}

	if err != nil {
		p.resolve(engine.Result{}, err)
		logger.Error("job failed",
			logging.FieldJobID, p.job.ID,
			slog.Duration("took", elapsed),
			logging.Error(err))
		d.finish(p, StatusFailed, err)
		return
	}

	p.resolve(result, nil)
	logger.Info("job completed",
		logging.FieldJobID, p.job.ID,
		slog.Duration("took", elapsed),
		slog.Int("segments", len(result.Segments)))
	d.finish(p, StatusDone, nil)
}

func (d *Dispatcher) finish(p *Pending, status Status, err error) {
	d.mu.Lock()
	switch status {
	case StatusDone:
		d.stats.completed++
	case StatusFailed:
		d.stats.failed++
	case StatusCanceled:
		d.stats.canceled++
	}
	d.mu.Unlock()

	if d.observer == nil {
		return
	}
	queuedAt, startedAt := p.timings()
	queuedFor := time.Duration(0)
	ranFor := time.Duration(0)
	if !startedAt.IsZero() {
		queuedFor = startedAt.Sub(queuedAt)
		ranFor = time.Since(startedAt)
	} else {
		queuedFor = time.Since(queuedAt)
	}
	d.observer.JobFinished(p.job.ID, status, services.Kind(err), queuedFor, ranFor)
}
