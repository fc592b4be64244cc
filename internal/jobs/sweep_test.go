package jobs_test

import (
	"context"
	"testing"
	"time"

	"dealpipe/internal/deal"
	"dealpipe/internal/jobs"
	"dealpipe/internal/logging"
	"dealpipe/internal/store"
	"dealpipe/internal/testsupport"
)

func seedOverdueTask(t *testing.T, st *store.Store, dealID int64, key, assignee string) *deal.Task {
	t.Helper()
	ctx := context.Background()

	due := time.Now().UTC().Add(-48 * time.Hour)
	created, err := st.CreateTaskFromTemplate(ctx, dealID, deal.TaskTemplate{
		Stage:           deal.StageProposalDev,
		Key:             key,
		Title:           "Draft volume " + key,
		DefaultPriority: deal.PriorityHigh,
	}, &due)
	if err != nil {
		t.Fatalf("CreateTaskFromTemplate: %v", err)
	}
	if !created {
		t.Fatal("expected task to be created")
	}

	tasks, err := st.ListTasks(ctx, dealID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	var task *deal.Task
	for _, candidate := range tasks {
		if candidate.TemplateKey == key {
			task = candidate
		}
	}
	if task == nil {
		t.Fatalf("task %q not found", key)
	}
	if assignee != "" {
		if err := st.AssignTask(ctx, task.ID, assignee); err != nil {
			t.Fatalf("AssignTask: %v", err)
		}
		task.Assignee = assignee
	}
	return task
}

func TestSweepNotifiesAssigneeAndOwner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sweeper := jobs.NewSweeper(cfg, st, nil, logging.NewNop())
	ctx := context.Background()

	d := testsupport.NewDealAt(t, st, "Overdue Work", "owner1", deal.StageProposalDev)
	task := seedOverdueTask(t, st, d.ID, "technical_volume", "writer1")

	result, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.OverdueTasks != 1 {
		t.Fatalf("expected one overdue task, got %d", result.OverdueTasks)
	}
	if result.NotificationsCreated != 2 {
		t.Fatalf("expected notifications for assignee and owner, got %d", result.NotificationsCreated)
	}
	if result.ActivitiesRecorded != 1 {
		t.Fatalf("expected one overdue activity, got %d", result.ActivitiesRecorded)
	}

	for _, user := range []string{"writer1", "owner1"} {
		notifications, err := st.ListNotifications(ctx, user)
		if err != nil {
			t.Fatalf("ListNotifications(%s): %v", user, err)
		}
		if len(notifications) != 1 {
			t.Fatalf("expected one notification for %s, got %d", user, len(notifications))
		}
		n := notifications[0]
		if n.EntityType != "task" || n.EntityID != task.ID || n.Type != jobs.NotificationTaskOverdue {
			t.Fatalf("unexpected notification for %s: %+v", user, n)
		}
	}
}

func TestSweepRerunDoesNotDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sweeper := jobs.NewSweeper(cfg, st, nil, logging.NewNop())
	ctx := context.Background()

	d := testsupport.NewDealAt(t, st, "Still Overdue", "owner1", deal.StageProposalDev)
	seedOverdueTask(t, st, d.ID, "pricing_volume", "writer1")

	if _, err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	result, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if result.OverdueTasks != 1 {
		t.Fatalf("expected task still overdue, got %d", result.OverdueTasks)
	}
	if result.NotificationsCreated != 0 {
		t.Fatalf("expected notification dedup, got %d new", result.NotificationsCreated)
	}
	// Within the dedup window the activity is suppressed too.
	if result.ActivitiesRecorded != 0 {
		t.Fatalf("expected activity dedup, got %d new", result.ActivitiesRecorded)
	}
}

func TestSweepDedupWindowDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDedupWindow(0))
	st := testsupport.MustOpenStore(t, cfg)
	sweeper := jobs.NewSweeper(cfg, st, nil, logging.NewNop())
	ctx := context.Background()

	d := testsupport.NewDealAt(t, st, "Noisy Feed", "owner1", deal.StageProposalDev)
	seedOverdueTask(t, st, d.ID, "proposal_outline", "")

	if _, err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	result, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if result.ActivitiesRecorded != 1 {
		t.Fatalf("expected a fresh activity with dedup disabled, got %d", result.ActivitiesRecorded)
	}
}

func TestSweepUnassignedTaskNotifiesOwnerOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sweeper := jobs.NewSweeper(cfg, st, nil, logging.NewNop())
	ctx := context.Background()

	d := testsupport.NewDealAt(t, st, "Unassigned", "owner1", deal.StageProposalDev)
	seedOverdueTask(t, st, d.ID, "technical_volume", "")

	result, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.NotificationsCreated != 1 {
		t.Fatalf("expected one notification, got %d", result.NotificationsCreated)
	}
}

func TestSweepIgnoresCompletedTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sweeper := jobs.NewSweeper(cfg, st, nil, logging.NewNop())
	ctx := context.Background()

	d := testsupport.NewDealAt(t, st, "Caught Up", "owner1", deal.StageProposalDev)
	task := seedOverdueTask(t, st, d.ID, "red_team_review", "writer1")
	if err := st.UpdateTaskStatus(ctx, task.ID, deal.TaskCompleted); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}

	result, err := sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.OverdueTasks != 0 {
		t.Fatalf("expected no overdue tasks, got %d", result.OverdueTasks)
	}
}
