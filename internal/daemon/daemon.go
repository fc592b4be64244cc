package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"dealpipe/internal/api"
	"dealpipe/internal/config"
	"dealpipe/internal/deal"
	"dealpipe/internal/jobs"
	"dealpipe/internal/logging"
	"dealpipe/internal/notify"
	"dealpipe/internal/store"
	"dealpipe/internal/templates"
	"dealpipe/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution via a file lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	engine  *workflow.Engine
	runner  *jobs.Runner
	sweeper *jobs.Sweeper
	service *api.DealService
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DatabasePath string
	LockFilePath string
	JobCounts    map[store.JobStatus]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	catalog, err := templates.Load(cfg.Templates.Path)
	if err != nil {
		return nil, fmt.Errorf("load task templates: %w", err)
	}

	graph := deal.DefaultStageGraph()
	notifier := notify.NewService(cfg)
	engine := workflow.NewEngine(graph, st, nil, st, logger)
	engine.SetNotifier(notifier)

	runner := jobs.NewRunner(cfg, st, notifier, logger)
	runner.Register(workflow.StageEntryJobName, jobs.NewStageEntry(st, catalog, logger))

	lockPath := filepath.Join(cfg.Paths.LogDir, "dealpiped.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		engine:   engine,
		runner:   runner,
		sweeper:  jobs.NewSweeper(cfg, st, notifier, logger),
		service:  api.NewDealService(st, engine, graph),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = server
	return d, nil
}

// Start acquires the daemon lock and launches the job runner, the overdue
// sweeper, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dealpipe daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.runner.Start(runCtx); err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start job runner: %w", err)
	}
	if err := d.sweeper.Start(runCtx); err != nil {
		d.runner.Stop()
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start sweeper: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.sweeper.Stop()
		d.runner.Stop()
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("dealpipe daemon started", logging.String("lock", d.lockPath))
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
	d.api.stop()
	d.sweeper.Stop()
	d.runner.Stop()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("dealpipe daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Service exposes the shared deal service layer.
func (d *Daemon) Service() *api.DealService {
	return d.service
}

// APIAddr returns the bound API listener address, empty until Start.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// TestNotification triggers a test push using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notify.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	counts, err := d.store.JobStats(ctx)
	if err != nil {
		d.logger.Warn("job stats unavailable", logging.Error(err))
		counts = nil
	}
	return Status{
		Running:      d.running.Load(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		JobCounts:    counts,
	}
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
