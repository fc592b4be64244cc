package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealpipe/internal/deal"
	"dealpipe/internal/store"
	"dealpipe/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	d, err := st.CreateDeal(ctx, "Radar Modernization", "alice", deal.StageQualification)
	if err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}
	if d.ID == 0 {
		t.Fatal("expected deal ID to be assigned")
	}
	if d.Version != 1 {
		t.Fatalf("expected initial version 1, got %d", d.Version)
	}

	fetched, err := st.GetDeal(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDeal failed: %v", err)
	}
	if fetched == nil || fetched.Title != "Radar Modernization" {
		t.Fatalf("unexpected fetched deal: %#v", fetched)
	}
	if fetched.Stage != deal.StageQualification {
		t.Fatalf("unexpected stage: %s", fetched.Stage)
	}
}

func TestCreateDealRejectsUnknownStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if _, err := st.CreateDeal(context.Background(), "Bad", "alice", deal.Stage("warp_drive")); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestGetDealMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	d, err := st.GetDeal(context.Background(), 4242)
	if err != nil {
		t.Fatalf("GetDeal failed: %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil for missing deal, got %#v", d)
	}
}

func TestCommitTransitionWritesHistoryAndActivity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	d := testsupport.NewDeal(t, st, "Logistics IDIQ", "bob")
	entered := d.StageEnteredAt

	record, err := st.CommitTransition(ctx, store.CommitTransitionParams{
		Deal:   d,
		Target: deal.StageCapturePlan,
		Actor:  "bob",
		Reason: "qualified by capture team",
		Activity: deal.Activity{
			DealID:      d.ID,
			Actor:       "bob",
			Action:      "stage.changed",
			Description: "Stage changed from qualification to capture_plan",
			Metadata:    map[string]string{"from_stage": "qualification", "to_stage": "capture_plan"},
		},
	})
	if err != nil {
		t.Fatalf("CommitTransition failed: %v", err)
	}
	if record.FromStage != deal.StageQualification || record.ToStage != deal.StageCapturePlan {
		t.Fatalf("unexpected record stages: %s -> %s", record.FromStage, record.ToStage)
	}
	if record.DurationInPrev < 0 {
		t.Fatalf("unexpected negative duration: %v", record.DurationInPrev)
	}

	if d.Stage != deal.StageCapturePlan {
		t.Fatalf("deal snapshot not updated: %s", d.Stage)
	}
	if d.Version != 2 {
		t.Fatalf("expected version 2 after commit, got %d", d.Version)
	}
	if !d.StageEnteredAt.After(entered) && !d.StageEnteredAt.Equal(entered) {
		t.Fatalf("stage_entered_at not refreshed: %v", d.StageEnteredAt)
	}

	records, err := st.ListTransitions(ctx, d.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListTransitions failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one history record, got %d", len(records))
	}

	activities, err := st.ListActivities(ctx, d.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListActivities failed: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("expected exactly one activity, got %d", len(activities))
	}
	if activities[0].Metadata["to_stage"] != "capture_plan" {
		t.Fatalf("unexpected activity metadata: %#v", activities[0].Metadata)
	}
}

func TestCommitTransitionDetectsStaleRead(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	d := testsupport.NewDeal(t, st, "Stale Read", "carol")

	// A second caller holds the same snapshot and commits first.
	snapshot := *d
	if _, err := st.CommitTransition(ctx, store.CommitTransitionParams{
		Deal:     d,
		Target:   deal.StageCapturePlan,
		Actor:    "carol",
		Activity: deal.Activity{DealID: d.ID, Action: "stage.changed"},
	}); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	_, err := st.CommitTransition(ctx, store.CommitTransitionParams{
		Deal:     &snapshot,
		Target:   deal.StageClosedLost,
		Actor:    "mallory",
		Activity: deal.Activity{DealID: d.ID, Action: "stage.changed"},
	})
	if !errors.Is(err, deal.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	// The losing commit must not have written history.
	records, err := st.ListTransitions(ctx, d.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListTransitions failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one history record, got %d", len(records))
	}

	current, err := st.GetDeal(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDeal failed: %v", err)
	}
	if current.Stage != deal.StageCapturePlan {
		t.Fatalf("stage overwritten by stale commit: %s", current.Stage)
	}
}

func TestCommitTransitionMissingDeal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ghost := &deal.Deal{ID: 999, Stage: deal.StageQualification, Version: 1, StageEnteredAt: time.Now()}
	_, err := st.CommitTransition(context.Background(), store.CommitTransitionParams{
		Deal:     ghost,
		Target:   deal.StageCapturePlan,
		Actor:    "nobody",
		Activity: deal.Activity{DealID: ghost.ID, Action: "stage.changed"},
	})
	if !errors.Is(err, deal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGateDecision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	d := testsupport.NewDeal(t, st, "Gate Check", "dave")

	decision, err := st.GateDecision(ctx, d.ID, deal.StageSubmit)
	if err != nil {
		t.Fatalf("GateDecision failed: %v", err)
	}
	if decision.Satisfied() {
		t.Fatal("expected unsatisfied gate with no approvals")
	}

	testsupport.SeedApproval(t, st, d.ID, deal.StageSubmit, deal.ApprovalPending)
	decision, err = st.GateDecision(ctx, d.ID, deal.StageSubmit)
	if err != nil {
		t.Fatalf("GateDecision failed: %v", err)
	}
	if !decision.HasPending || decision.HasApproved {
		t.Fatalf("unexpected decision: %#v", decision)
	}

	testsupport.SeedApproval(t, st, d.ID, deal.StageSubmit, deal.ApprovalRejected)
	decision, err = st.GateDecision(ctx, d.ID, deal.StageSubmit)
	if err != nil {
		t.Fatalf("GateDecision failed: %v", err)
	}
	if decision.Satisfied() {
		t.Fatal("rejected approval must not satisfy the gate")
	}
}
