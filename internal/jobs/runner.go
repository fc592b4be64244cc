package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dealpipe/internal/config"
	"dealpipe/internal/deal"
	"dealpipe/internal/logging"
	"dealpipe/internal/notify"
	"dealpipe/internal/store"
)

// Handler executes one job delivery. Implementations receive the raw payload
// JSON and must tolerate redelivery of the same payload.
type Handler interface {
	Run(ctx context.Context, job *store.Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *store.Job) error

func (f HandlerFunc) Run(ctx context.Context, job *store.Job) error { return f(ctx, job) }

// Runner polls the job queue and dispatches claimed jobs to handlers
// registered by name.
type Runner struct {
	cfg      *config.Config
	store    *store.Store
	notifier notify.Service
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRunner builds a runner with no handlers registered.
func NewRunner(cfg *config.Config, st *store.Store, notifier notify.Service, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewService(cfg)
	}
	return &Runner{
		cfg:      cfg,
		store:    st,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "jobrunner")),
		handlers: make(map[string]Handler),
	}
}

// Register installs the handler for jobs with the given name. Registering a
// name twice replaces the earlier handler.
func (r *Runner) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Start reclaims jobs stranded in the running state by a previous process and
// begins background polling.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("job runner already running")
	}
	if len(r.handlers) == 0 {
		r.mu.Unlock()
		return errors.New("no job handlers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	reclaimed, err := r.store.ResetStuckJobs(runCtx)
	if err != nil {
		r.logger.Warn("reset stuck jobs failed; stranded jobs may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_reclaim_failed"),
		)
	} else if reclaimed > 0 {
		r.logger.Info("requeued jobs stranded by previous run",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "job_reclaimed"),
		)
	}

	go r.run(runCtx)
	return nil
}

// Stop terminates polling and waits for the in-flight job, if any.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := r.store.ClaimNextJob(ctx, time.Now().UTC())
		if err != nil {
			r.logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_claim_failed"),
			)
			r.sleep(ctx, time.Duration(r.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}
		if job == nil {
			r.sleep(ctx, time.Duration(r.cfg.Workflow.JobPollInterval)*time.Second)
			continue
		}

		if err := r.processJob(ctx, job); errors.Is(err, context.Canceled) {
			return
		}
	}
}

// ProcessOne claims and executes at most one due job. Tests drive the queue
// deterministically through it; the poll loop uses the same path.
func (r *Runner) ProcessOne(ctx context.Context) (bool, error) {
	job, err := r.store.ClaimNextJob(ctx, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return true, r.processJob(ctx, job)
}

func (r *Runner) processJob(ctx context.Context, job *store.Job) error {
	logger := r.logger.With(
		logging.String(logging.FieldJob, job.Name),
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int("attempt", job.Attempts),
	)

	r.mu.Lock()
	handler := r.handlers[job.Name]
	r.mu.Unlock()
	if handler == nil {
		logger.Error("no handler registered for job",
			logging.String(logging.FieldEventType, "job_unroutable"),
		)
		if err := r.store.MarkJobFailed(ctx, job.ID, fmt.Sprintf("no handler registered for %q", job.Name)); err != nil {
			logger.Error("mark job failed", logging.Error(err))
		}
		return nil
	}

	start := time.Now()
	err := handler.Run(ctx, job)
	if err == nil {
		if markErr := r.store.MarkJobDone(ctx, job.ID); markErr != nil {
			logger.Error("mark job done", logging.Error(markErr))
			return markErr
		}
		logger.Info("job completed",
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldEventType, "job_completed"),
		)
		return nil
	}
	if errors.Is(err, context.Canceled) {
		// Shutdown mid-job. The row stays running and is requeued by
		// ResetStuckJobs on the next start.
		return err
	}

	// Attempts counts deliveries, so the first run arrives here with
	// Attempts=1 and the limit bounds retries after it.
	if deal.Retryable(err) && job.Attempts <= r.cfg.Workflow.JobMaxAttempts {
		delay := time.Duration(job.Attempts*r.cfg.Workflow.JobRetryBackoff) * time.Second
		runAt := time.Now().UTC().Add(delay)
		logger.Warn("job failed; scheduling retry",
			logging.Error(err),
			logging.Duration("delay", delay),
			logging.String(logging.FieldEventType, "job_retry_scheduled"),
		)
		if rescheduleErr := r.store.RescheduleJob(ctx, job.ID, runAt, err.Error()); rescheduleErr != nil {
			logger.Error("reschedule job", logging.Error(rescheduleErr))
			return rescheduleErr
		}
		return nil
	}

	logger.Error("job failed permanently",
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_failed"),
	)
	if markErr := r.store.MarkJobFailed(ctx, job.ID, err.Error()); markErr != nil {
		logger.Error("mark job failed", logging.Error(markErr))
		return markErr
	}
	if notifyErr := r.notifier.NotifyJobFailed(ctx, job.Name, job.ID, err); notifyErr != nil {
		logger.Warn("job failure notification failed", logging.Error(notifyErr))
	}
	return nil
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
