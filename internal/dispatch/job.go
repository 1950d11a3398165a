package dispatch

import (
	"sync"
	"time"

	"github.com/m-aliabbas/whisper-at-server/internal/engine"
)

// Status represents the lifecycle of a dispatched job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Job describes one transcription request handed to the dispatcher. A job is
// owned exclusively by the dispatcher from submit until completion; callers
// must not mutate it afterwards.
type Job struct {
	ID              string
	AudioPath       string
	SourceName      string
	DurationSeconds float64
	SampleRate      int
	PassThrough     bool
	Params          engine.Params
	SubmittedAt     time.Time
}

// Pending is the handle returned by Submit. Await blocks until the job
// resolves; every submitted job resolves exactly once, with a result, an
// error, or a cancellation.
type Pending struct {
	job *Job

	mu     sync.Mutex
	status Status

	resolveOnce sync.Once
	done        chan struct{}
	result      engine.Result
	err         error

	queuedAt  time.Time
	startedAt time.Time
}

func newPending(job *Job) *Pending {
	return &Pending{
		job:      job,
		status:   StatusQueued,
		done:     make(chan struct{}),
		queuedAt: time.Now(),
	}
}

// Job returns the job this handle tracks.
func (p *Pending) Job() Job {
	return *p.job
}

// Status returns the job's current lifecycle state.
func (p *Pending) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// tryStart transitions a queued job to running. It refuses once the job has
// been canceled, so a cancellation that wins the race keeps the job away from
// any engine.
func (p *Pending) tryStart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusQueued {
		return false
	}
	p.status = StatusRunning
	p.startedAt = time.Now()
	return true
}

// settle moves a running job to its terminal status and reports the status
// that won; a cancellation that landed mid-inference takes precedence.
func (p *Pending) settle(to Status) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusRunning {
		p.status = to
	}
	return p.status
}

// markCanceled flips the job to canceled and reports the state it was in.
func (p *Pending) markCanceled() (previous Status) {
	p.mu.Lock()
	previous = p.status
	if previous == StatusQueued || previous == StatusRunning {
		p.status = StatusCanceled
	}
	p.mu.Unlock()
	return previous
}

func (p *Pending) timings() (queuedAt, startedAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queuedAt, p.startedAt
}

func (p *Pending) resolve(result engine.Result, err error) {
	p.resolveOnce.Do(func() {
		p.result = result
		p.err = err
		close(p.done)
	})
}
