package api_test

import (
	"context"
	"errors"
	"testing"

	"dealpipe/internal/api"
	"dealpipe/internal/deal"
	"dealpipe/internal/logging"
	"dealpipe/internal/store"
	"dealpipe/internal/testsupport"
	"dealpipe/internal/workflow"
)

func newService(t *testing.T) (*api.DealService, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	graph := deal.DefaultStageGraph()
	engine := workflow.NewEngine(graph, st, nil, st, logging.NewNop())
	return api.NewDealService(st, engine, graph), st
}

func TestCreateDealEnqueuesStageEntry(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, api.CreateDealRequest{Title: "Base Radios", Owner: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Stage != string(deal.StageQualification) {
		t.Fatalf("unexpected initial stage: %s", created.Stage)
	}

	jobs, err := st.ListJobs(ctx, store.JobPending)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != workflow.StageEntryJobName {
		t.Fatalf("expected one stage entry job, got %+v", jobs)
	}

	activities, err := svc.Activities(ctx, created.ID, 10, 0)
	if err != nil {
		t.Fatalf("Activities: %v", err)
	}
	if len(activities) != 1 || activities[0].Action != api.ActionDealCreated {
		t.Fatalf("expected intake activity, got %+v", activities)
	}
}

func TestCreateDealValidatesInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, api.CreateDealRequest{Owner: "alice"}); !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing title, got %v", err)
	}
	if _, err := svc.Create(ctx, api.CreateDealRequest{Title: "No Owner"}); !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing owner, got %v", err)
	}
}

func TestDescribeIncludesNextStages(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, api.CreateDealRequest{Title: "Detail View", Owner: "bob"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	detail, err := svc.Describe(ctx, created.ID, 10, 0)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if detail == nil {
		t.Fatal("expected detail for existing deal")
	}
	want := map[string]bool{"capture_plan": true, "closed_lost": true}
	if len(detail.NextStages) != len(want) {
		t.Fatalf("unexpected next stages: %v", detail.NextStages)
	}
	for _, stage := range detail.NextStages {
		if !want[stage] {
			t.Fatalf("unexpected next stage %q", stage)
		}
	}
}

func TestDescribeMissingDeal(t *testing.T) {
	svc, _ := newService(t)

	detail, err := svc.Describe(context.Background(), 404, 10, 0)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if detail != nil {
		t.Fatalf("expected nil detail, got %+v", detail)
	}
}

func TestTransitionClassifiesFailures(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, api.CreateDealRequest{Title: "Edges", Owner: "carol"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Transition(ctx, created.ID, api.TransitionRequest{Target: "warehouse", Actor: "carol"}); !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown stage, got %v", err)
	}
	if _, err := svc.Transition(ctx, created.ID, api.TransitionRequest{Target: "submit", Actor: "carol"}); !errors.Is(err, deal.ErrInvalidEdge) {
		t.Fatalf("expected ErrInvalidEdge, got %v", err)
	}

	resp, err := svc.Transition(ctx, created.ID, api.TransitionRequest{Target: "capture_plan", Actor: "carol", Reason: "qualified"})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if resp.Deal.Stage != "capture_plan" || resp.Transition.ToStage != "capture_plan" {
		t.Fatalf("unexpected transition response: %+v", resp)
	}
}

func TestApproveValidatesGate(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, api.CreateDealRequest{Title: "Gated", Owner: "dave"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Approve(ctx, created.ID, api.ApprovalRequest{Stage: "capture_plan", Status: "approved"}); !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for ungated stage, got %v", err)
	}
	if err := svc.Approve(ctx, created.ID, api.ApprovalRequest{Stage: "submit", Status: "maybe"}); !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown status, got %v", err)
	}
	if err := svc.Approve(ctx, 404, api.ApprovalRequest{Stage: "submit", Status: "approved"}); !errors.Is(err, deal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := svc.Approve(ctx, created.ID, api.ApprovalRequest{Stage: "submit", Status: "approved"}); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	decision, err := st.GateDecision(ctx, created.ID, deal.StageSubmit)
	if err != nil {
		t.Fatalf("GateDecision: %v", err)
	}
	if !decision.Satisfied() {
		t.Fatal("expected gate to be satisfied after approval")
	}
}

func TestJobStatsNormalized(t *testing.T) {
	svc, _ := newService(t)

	stats, err := svc.JobStats(context.Background())
	if err != nil {
		t.Fatalf("JobStats: %v", err)
	}
	for _, status := range []string{"pending", "running", "done", "failed"} {
		if _, ok := stats[status]; !ok {
			t.Fatalf("missing status %q in stats: %v", status, stats)
		}
	}
}
