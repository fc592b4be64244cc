package store_test

import (
	"context"
	"testing"
	"time"

	"dealpipe/internal/deal"
	"dealpipe/internal/testsupport"
)

func TestCreateTaskFromTemplateIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	d := testsupport.NewDeal(t, st, "Task Dedup", "erin")
	tmpl := deal.TaskTemplate{
		Stage:           deal.StageCapturePlan,
		Key:             "draft-capture-plan",
		Title:           "Draft capture plan",
		DefaultPriority: deal.PriorityHigh,
	}
	due := time.Now().Add(72 * time.Hour)

	created, err := st.CreateTaskFromTemplate(ctx, d.ID, tmpl, &due)
	if err != nil {
		t.Fatalf("CreateTaskFromTemplate failed: %v", err)
	}
	if !created {
		t.Fatal("expected first creation to insert")
	}

	created, err = st.CreateTaskFromTemplate(ctx, d.ID, tmpl, &due)
	if err != nil {
		t.Fatalf("second CreateTaskFromTemplate failed: %v", err)
	}
	if created {
		t.Fatal("expected duplicate creation to be ignored")
	}

	tasks, err := st.ListTasks(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	if !tasks[0].IsAIGenerated {
		t.Fatal("expected generated task to be flagged is_ai_generated")
	}
	if tasks[0].DueDate == nil {
		t.Fatal("expected due date to be stored")
	}
}

func TestListOverdueOpenTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	d := testsupport.NewDeal(t, st, "Overdue Deal", "frank")
	now := time.Now()
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	seed := []struct {
		key string
		due *time.Time
	}{
		{"overdue", &past},
		{"on-time", &future},
		{"no-due", nil},
	}
	for _, s := range seed {
		tmpl := deal.TaskTemplate{Stage: deal.StageCapturePlan, Key: s.key, Title: s.key, DefaultPriority: deal.PriorityNormal}
		if _, err := st.CreateTaskFromTemplate(ctx, d.ID, tmpl, s.due); err != nil {
			t.Fatalf("seed task %s: %v", s.key, err)
		}
	}

	overdue, err := st.ListOverdueOpenTasks(ctx, now)
	if err != nil {
		t.Fatalf("ListOverdueOpenTasks failed: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("expected one overdue task, got %d", len(overdue))
	}
	if overdue[0].Task.TemplateKey != "overdue" {
		t.Fatalf("unexpected overdue task: %s", overdue[0].Task.TemplateKey)
	}
	if overdue[0].DealOwner != "frank" {
		t.Fatalf("expected deal owner to be joined, got %q", overdue[0].DealOwner)
	}

	// In-progress tasks still count as open.
	if err := st.UpdateTaskStatus(ctx, overdue[0].Task.ID, deal.TaskInProgress); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	overdue, err = st.ListOverdueOpenTasks(ctx, now)
	if err != nil {
		t.Fatalf("ListOverdueOpenTasks failed: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("expected in-progress task to stay overdue, got %d", len(overdue))
	}

	// Completed tasks drop out of the sweep.
	if err := st.UpdateTaskStatus(ctx, overdue[0].Task.ID, deal.TaskCompleted); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	overdue, err = st.ListOverdueOpenTasks(ctx, now)
	if err != nil {
		t.Fatalf("ListOverdueOpenTasks failed: %v", err)
	}
	if len(overdue) != 0 {
		t.Fatalf("expected no overdue tasks after completion, got %d", len(overdue))
	}
}

func TestHasRecentActivity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	d := testsupport.NewDeal(t, st, "Activity Window", "grace")
	if err := st.AppendActivity(ctx, deal.Activity{
		DealID:      d.ID,
		Action:      "task.overdue",
		Description: "Task overdue",
		Metadata:    map[string]string{"task_id": "7"},
	}); err != nil {
		t.Fatalf("AppendActivity failed: %v", err)
	}

	recent, err := st.HasRecentActivity(ctx, d.ID, "task.overdue", 7, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("HasRecentActivity failed: %v", err)
	}
	if !recent {
		t.Fatal("expected recent activity to be found")
	}

	recent, err = st.HasRecentActivity(ctx, d.ID, "task.overdue", 8, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("HasRecentActivity failed: %v", err)
	}
	if recent {
		t.Fatal("expected no activity for a different task")
	}

	recent, err = st.HasRecentActivity(ctx, d.ID, "task.overdue", 7, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("HasRecentActivity failed: %v", err)
	}
	if recent {
		t.Fatal("expected activity outside the window to be ignored")
	}
}
