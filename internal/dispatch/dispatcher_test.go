package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-aliabbas/whisper-at-server/internal/engine"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
	"github.com/m-aliabbas/whisper-at-server/internal/services"
)

type stubEngine struct {
	mu      sync.Mutex
	calls   []string
	started chan string
	proceed chan struct{}
	result  engine.Result
	err     error
}

func (s *stubEngine) Transcribe(ctx context.Context, wavPath string, _ engine.Params) (engine.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, wavPath)
	s.mu.Unlock()
	if s.started != nil {
		s.started <- wavPath
	}
	if s.proceed != nil {
		select {
		case <-s.proceed:
		case <-ctx.Done():
			return engine.Result{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubEngine) callOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func job(path string) Job {
	return Job{AudioPath: path, Params: engine.DefaultParams()}
}

func awaitStart(t *testing.T, started chan string) string {
	t.Helper()
	select {
	case path := <-started:
		return path
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not start a job in time")
		return ""
	}
}

func TestJobsRunInSubmissionOrder(t *testing.T) {
	stub := &stubEngine{
		started: make(chan string, 8),
		proceed: make(chan struct{}),
		result:  engine.Result{Text: "ok"},
	}
	d, err := New([]Engine{stub}, 8, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())
	defer d.Stop()

	pendings := make([]*Pending, 0, 3)
	for _, path := range []string{"a.wav", "b.wav", "c.wav"} {
		p, err := d.Submit(job(path))
		if err != nil {
			t.Fatalf("Submit(%s): %v", path, err)
		}
		pendings = append(pendings, p)
	}

	for range pendings {
		awaitStart(t, stub.started)
		stub.proceed <- struct{}{}
	}
	for _, p := range pendings {
		if _, err := d.Await(context.Background(), p); err != nil {
			t.Fatalf("Await: %v", err)
		}
	}

	got := stub.callOrder()
	want := []string{"a.wav", "b.wav", "c.wav"}
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSubmitFailsWhenQueueFull(t *testing.T) {
	stub := &stubEngine{
		started: make(chan string, 8),
		proceed: make(chan struct{}),
	}
	d, err := New([]Engine{stub}, 2, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())
	defer d.Stop()

	first, err := d.Submit(job("running.wav"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	awaitStart(t, stub.started)

	if _, err := d.Submit(job("q1.wav")); err != nil {
		t.Fatalf("Submit q1: %v", err)
	}
	if _, err := d.Submit(job("q2.wav")); err != nil {
		t.Fatalf("Submit q2: %v", err)
	}
	if _, err := d.Submit(job("overflow.wav")); !errors.Is(err, services.ErrQueueFull) {
		t.Fatalf("expected queue full error, got %v", err)
	}

	stub.proceed <- struct{}{}
	if _, err := d.Await(context.Background(), first); err != nil {
		t.Fatalf("Await first: %v", err)
	}
	awaitStart(t, stub.started)

	if _, err := d.Submit(job("after.wav")); err != nil {
		t.Fatalf("Submit after slot freed: %v", err)
	}
	for i := 0; i < 3; i++ {
		stub.proceed <- struct{}{}
		if i < 2 {
			awaitStart(t, stub.started)
		}
	}
}

func TestCancelWhileQueuedSkipsEngine(t *testing.T) {
	stub := &stubEngine{
		started: make(chan string, 8),
		proceed: make(chan struct{}),
		result:  engine.Result{Text: "ok"},
	}
	d, err := New([]Engine{stub}, 4, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())
	defer d.Stop()

	first, err := d.Submit(job("first.wav"))
	if err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	awaitStart(t, stub.started)

	queued, err := d.Submit(job("queued.wav"))
	if err != nil {
		t.Fatalf("Submit queued: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Await(ctx, queued); !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if got := queued.Status(); got != StatusCanceled {
		t.Fatalf("status = %s, want %s", got, StatusCanceled)
	}

	stub.proceed <- struct{}{}
	if _, err := d.Await(context.Background(), first); err != nil {
		t.Fatalf("Await first: %v", err)
	}

	for _, path := range stub.callOrder() {
		if path == "queued.wav" {
			t.Fatal("canceled job reached the engine")
		}
	}
}

func TestCancelWhileRunningDiscardsResult(t *testing.T) {
	stub := &stubEngine{
		started: make(chan string, 8),
		proceed: make(chan struct{}),
		result:  engine.Result{Text: "late"},
	}
	d, err := New([]Engine{stub}, 4, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())
	defer d.Stop()

	p, err := d.Submit(job("slow.wav"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	awaitStart(t, stub.started)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Await(ctx, p)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, services.ErrCanceled) {
			t.Fatalf("expected canceled error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return after cancellation")
	}

	stub.proceed <- struct{}{}

	deadline := time.Now().Add(2 * time.Second)
	for {
		stats := d.Snapshot()
		if stats.Canceled == 1 && stats.Running == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("canceled job never settled: %+v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAwaitTimeoutBoundsWaiting(t *testing.T) {
	stub := &stubEngine{
		started: make(chan string, 8),
		proceed: make(chan struct{}),
	}
	d, err := New([]Engine{stub}, 4, 50*time.Millisecond, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())
	defer d.Stop()

	p, err := d.Submit(job("stuck.wav"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	awaitStart(t, stub.started)

	if _, err := d.Await(context.Background(), p); !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	close(stub.proceed)
}

func TestSubmitValidation(t *testing.T) {
	stub := &stubEngine{result: engine.Result{}}
	d, err := New([]Engine{stub}, 4, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())
	defer d.Stop()

	if _, err := d.Submit(Job{Params: engine.DefaultParams()}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty path, got %v", err)
	}

	bad := engine.DefaultParams()
	bad.Temperature = 3
	if _, err := d.Submit(Job{AudioPath: "a.wav", Params: bad}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad params, got %v", err)
	}
}

func TestStopResolvesQueuedJobs(t *testing.T) {
	stub := &stubEngine{
		started: make(chan string, 8),
		proceed: make(chan struct{}),
	}
	d, err := New([]Engine{stub}, 4, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())

	if _, err := d.Submit(job("running.wav")); err != nil {
		t.Fatalf("Submit running: %v", err)
	}
	awaitStart(t, stub.started)
	queued, err := d.Submit(job("queued.wav"))
	if err != nil {
		t.Fatalf("Submit queued: %v", err)
	}

	d.Stop()

	if _, err := d.Await(context.Background(), queued); !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if _, err := d.Submit(job("late.wav")); !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable after stop, got %v", err)
	}
}

func TestTwoInstancesRunConcurrently(t *testing.T) {
	stub := &stubEngine{
		started: make(chan string, 8),
		proceed: make(chan struct{}),
		result:  engine.Result{Text: "ok"},
	}
	d, err := New([]Engine{stub, stub}, 4, time.Minute, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())
	defer d.Stop()

	a, err := d.Submit(job("a.wav"))
	if err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	b, err := d.Submit(job("b.wav"))
	if err != nil {
		t.Fatalf("Submit b: %v", err)
	}

	awaitStart(t, stub.started)
	awaitStart(t, stub.started)
	if stats := d.Snapshot(); stats.Running != 2 {
		t.Fatalf("running = %d, want 2", stats.Running)
	}

	stub.proceed <- struct{}{}
	stub.proceed <- struct{}{}
	if _, err := d.Await(context.Background(), a); err != nil {
		t.Fatalf("Await a: %v", err)
	}
	if _, err := d.Await(context.Background(), b); err != nil {
		t.Fatalf("Await b: %v", err)
	}
}

type recordingObserver struct {
	mu         sync.Mutex
	events     []string
	finished   map[string]int
	queueDelay time.Duration
}

func newRecordingObserver(queueDelay time.Duration) *recordingObserver {
	return &recordingObserver{finished: make(map[string]int), queueDelay: queueDelay}
}

func (o *recordingObserver) JobQueued(job Job) {
	time.Sleep(o.queueDelay)
	o.mu.Lock()
	o.events = append(o.events, "queued:"+job.ID)
	o.mu.Unlock()
}

func (o *recordingObserver) JobStarted(jobID string, _ int) {
	o.mu.Lock()
	o.events = append(o.events, "started:"+jobID)
	o.mu.Unlock()
}

func (o *recordingObserver) JobFinished(jobID string, _ Status, _ string, _, _ time.Duration) {
	o.mu.Lock()
	o.finished[jobID]++
	o.mu.Unlock()
}

func (o *recordingObserver) eventIndex(event string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, e := range o.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (o *recordingObserver) finishCounts() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	counts := make(map[string]int, len(o.finished))
	for id, n := range o.finished {
		counts[id] = n
	}
	return counts
}

func TestObserverSeesQueueBeforeStart(t *testing.T) {
	stub := &stubEngine{result: engine.Result{Text: "ok"}}
	observer := newRecordingObserver(5 * time.Millisecond)
	d, err := New([]Engine{stub}, 8, time.Minute, logging.NewNop(), WithObserver(observer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())
	defer d.Stop()

	ids := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		p, err := d.Submit(job("fast.wav"))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if _, err := d.Await(context.Background(), p); err != nil {
			t.Fatalf("Await: %v", err)
		}
		ids = append(ids, p.Job().ID)
	}

	for _, id := range ids {
		queued := observer.eventIndex("queued:" + id)
		started := observer.eventIndex("started:" + id)
		if queued == -1 || started == -1 {
			t.Fatalf("missing lifecycle events for %s: queued=%d started=%d", id, queued, started)
		}
		if queued > started {
			t.Fatalf("job %s started at index %d before it was queued at %d", id, started, queued)
		}
	}
}

func TestConcurrentCancelFinishesExactlyOnce(t *testing.T) {
	stub := &stubEngine{result: engine.Result{Text: "ok"}}
	observer := newRecordingObserver(0)
	d, err := New([]Engine{stub}, 256, time.Minute, logging.NewNop(), WithObserver(observer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start(context.Background())

	const jobs = 200
	ids := make([]string, 0, jobs)
	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		p, err := d.Submit(job("racy.wav"))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, p.Job().ID)
		wg.Add(1)
		go func(p *Pending) {
			defer wg.Done()
			d.Cancel(p)
		}(p)
		<-p.done
	}
	wg.Wait()
	d.Stop()

	counts := observer.finishCounts()
	for _, id := range ids {
		if counts[id] != 1 {
			t.Fatalf("job %s finished %d times, want exactly 1", id, counts[id])
		}
	}

	stats := d.Snapshot()
	if total := stats.Completed + stats.Failed + stats.Canceled; total != jobs {
		t.Fatalf("terminal stats total = %d, want %d", total, jobs)
	}
}

func TestTryStartRefusesCanceledJob(t *testing.T) {
	p := newPending(&Job{ID: "x"})
	if got := p.markCanceled(); got != StatusQueued {
		t.Fatalf("markCanceled previous = %q, want queued", got)
	}
	if p.tryStart() {
		t.Fatal("tryStart must refuse a canceled job")
	}
	if p.Status() != StatusCanceled {
		t.Fatalf("status = %q, want canceled", p.Status())
	}
}
