package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/m-aliabbas/whisper-at-server/internal/config"
	"github.com/m-aliabbas/whisper-at-server/internal/dispatch"
	"github.com/m-aliabbas/whisper-at-server/internal/engine"
	"github.com/m-aliabbas/whisper-at-server/internal/httpapi"
	"github.com/m-aliabbas/whisper-at-server/internal/journal"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
	"github.com/m-aliabbas/whisper-at-server/internal/media/normalize"
	"github.com/m-aliabbas/whisper-at-server/internal/readiness"
)

// pruneInterval is how often the journal retention sweep runs.
const pruneInterval = 6 * time.Hour

// Daemon ties the model instances, dispatcher, API server, and journal into
// a single lifecycle guarded by a file lock.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *journal.Store

	state      *readiness.State
	engines    []*engine.Service
	dispatcher *dispatch.Dispatcher
	api        *httpapi.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Ready        bool
	Model        string
	Instances    int
	Queue        dispatch.Stats
	JournalPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *journal.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and journal store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	state := readiness.NewState()
	engineCfg := engine.ConfigFromApp(cfg)

	instances := cfg.Engine.Instances
	if instances <= 0 {
		instances = 1
	}
	engines := make([]*engine.Service, 0, instances)
	consumers := make([]dispatch.Engine, 0, instances)
	for i := 0; i < instances; i++ {
		svc := engine.NewService(engineCfg, nil, logger)
		engines = append(engines, svc)
		consumers = append(consumers, svc)
	}

	awaitTimeout := time.Duration(cfg.Queue.AwaitTimeout) * time.Second
	dispatcher, err := dispatch.New(consumers, cfg.Queue.Capacity, awaitTimeout, logger,
		dispatch.WithObserver(journal.NewRecorder(store, logger)))
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	normalizer := normalize.New(cfg.FFprobeBinary(), cfg.FFmpegBinary(), logger)
	api := httpapi.NewServer(cfg, normalizer, dispatcher, state, store, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "whisperatd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		state:      state,
		engines:    engines,
		dispatcher: dispatcher,
		api:        api,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, launches the dispatcher and API server,
// and begins loading model instances in the background. The HTTP front door
// serves immediately; transcription requests are rejected with 503 until
// every instance has loaded.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another whisperatd instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.dispatcher.Start(d.ctx)
	if err := d.api.Start(d.ctx); err != nil {
		d.dispatcher.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.wg.Add(2)
	go d.loadEngines()
	go d.pruneLoop()

	d.running.Store(true)
	d.logger.Info("daemon started",
		slog.String("lock", d.lockPath),
		slog.Int("instances", len(d.engines)))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.Stop()
	d.dispatcher.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Ready reports whether every model instance has loaded.
func (d *Daemon) Ready() bool {
	return d.state.Ready()
}

// Addr returns the API server's bound address.
func (d *Daemon) Addr() string {
	return d.api.Addr()
}

// Status reports daemon runtime information.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Ready:        d.state.Ready(),
		Model:        d.cfg.Engine.Model,
		Instances:    len(d.engines),
		Queue:        d.dispatcher.Snapshot(),
		JournalPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// loadEngines warms every model instance sequentially, then flips readiness.
// A load failure leaves the daemon serving 503s rather than crashing it: the
// API stays up so operators can see the failure through /health.
func (d *Daemon) loadEngines() {
	defer d.wg.Done()
	for i, svc := range d.engines {
		if d.ctx.Err() != nil {
			return
		}
		if err := svc.Load(d.ctx); err != nil {
			d.logger.Error("model instance failed to load",
				slog.Int("instance", i), logging.Error(err))
			return
		}
	}
	d.state.MarkReady()
	d.logger.Info("all model instances ready", slog.Int("instances", len(d.engines)))
}

func (d *Daemon) pruneLoop() {
	defer d.wg.Done()
	retention := time.Duration(d.cfg.Journal.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		deleted, err := d.store.Prune(d.ctx, retention)
		if err != nil && d.ctx.Err() == nil {
			d.logger.Warn("journal prune failed", logging.Error(err))
		} else if deleted > 0 {
			d.logger.Info("journal pruned", slog.Int64("deleted", deleted))
		}
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
