package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"dealpipe/internal/config"
	"dealpipe/internal/deal"
	"dealpipe/internal/logging"
	"dealpipe/internal/notify"
	"dealpipe/internal/store"
)

// ActionTaskOverdue is the activity action recorded when the sweep flags an
// overdue task.
const ActionTaskOverdue = "task.overdue"

// NotificationTaskOverdue is the in-app notification type for overdue tasks.
const NotificationTaskOverdue = "task_overdue"

// SweepResult summarizes one sweep run.
type SweepResult struct {
	OverdueTasks         int
	NotificationsCreated int
	ActivitiesRecorded   int
}

// Sweeper periodically scans for overdue open tasks, notifies the assignee
// and deal owner, and records overdue activities. Notifications dedupe on the
// (user, entity) key; activities dedupe within the configured window so a
// lingering task does not flood the feed on every run.
type Sweeper struct {
	cfg      *config.Config
	store    *store.Store
	notifier notify.Service
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSweeper builds an overdue task sweeper.
func NewSweeper(cfg *config.Config, st *store.Store, notifier notify.Service, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewService(cfg)
	}
	return &Sweeper{
		cfg:      cfg,
		store:    st,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "sweeper")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start begins periodic sweeps on the configured interval.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("sweeper already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Stop terminates periodic sweeps and waits for an in-flight run.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.Workflow.SweepInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		result, err := s.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("overdue sweep failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "sweep_failed"),
			)
			continue
		}
		s.logger.Info("overdue sweep completed",
			logging.Int("overdue", result.OverdueTasks),
			logging.Int("notifications", result.NotificationsCreated),
			logging.Int("activities", result.ActivitiesRecorded),
			logging.String(logging.FieldEventType, "sweep_completed"),
		)
	}
}

// RunOnce executes a single sweep pass and reports what it did.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	overdue, err := s.store.ListOverdueOpenTasks(ctx, now)
	if err != nil {
		return result, fmt.Errorf("list overdue tasks: %w", err)
	}
	result.OverdueTasks = len(overdue)

	for _, item := range overdue {
		task := item.Task
		for _, user := range recipients(task.Assignee, item.DealOwner) {
			created, err := s.store.UpsertNotification(ctx, deal.Notification{
				UserID:     user,
				EntityType: "task",
				EntityID:   task.ID,
				Type:       NotificationTaskOverdue,
				Title:      "Task overdue",
				Message:    fmt.Sprintf("%q is overdue (due %s)", task.Title, task.DueDate.Format("2006-01-02")),
			})
			if err != nil {
				return result, fmt.Errorf("notify %s for task %d: %w", user, task.ID, err)
			}
			if created {
				result.NotificationsCreated++
			}
		}

		recorded, err := s.recordOverdueActivity(ctx, task, now)
		if err != nil {
			return result, err
		}
		if recorded {
			result.ActivitiesRecorded++
		}
	}

	if result.OverdueTasks > 0 {
		if err := s.notifier.NotifySweepCompleted(ctx, result.OverdueTasks, result.NotificationsCreated); err != nil {
			s.logger.Warn("sweep summary notification failed", logging.Error(err))
		}
	}
	return result, nil
}

func (s *Sweeper) recordOverdueActivity(ctx context.Context, task *deal.Task, now time.Time) (bool, error) {
	window := time.Duration(s.cfg.Workflow.ActivityDedupWindow) * time.Second
	if window > 0 {
		recent, err := s.store.HasRecentActivity(ctx, task.DealID, ActionTaskOverdue, task.ID, now.Add(-window))
		if err != nil {
			return false, fmt.Errorf("check recent activity for task %d: %w", task.ID, err)
		}
		if recent {
			return false, nil
		}
	}

	activity := deal.Activity{
		DealID:      task.DealID,
		Actor:       systemActor,
		Action:      ActionTaskOverdue,
		Description: fmt.Sprintf("Task %q is overdue", task.Title),
		Metadata: map[string]string{
			"task_id": strconv.FormatInt(task.ID, 10),
			"stage":   string(task.Stage),
		},
		IsAIAction: true,
	}
	if err := s.store.AppendActivity(ctx, activity); err != nil {
		return false, fmt.Errorf("record overdue activity for task %d: %w", task.ID, err)
	}
	return true, nil
}

// recipients returns the distinct non-empty users to notify for a task.
func recipients(assignee, owner string) []string {
	out := make([]string, 0, 2)
	if assignee != "" {
		out = append(out, assignee)
	}
	if owner != "" && owner != assignee {
		out = append(out, owner)
	}
	return out
}
