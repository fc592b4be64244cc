package testsupport

import (
	"context"
	"testing"

	"dealpipe/internal/config"
	"dealpipe/internal/deal"
	"dealpipe/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewDeal creates a deal at the qualification stage for tests.
func NewDeal(t testing.TB, st *store.Store, title, owner string) *deal.Deal {
	t.Helper()

	d, err := st.CreateDeal(context.Background(), title, owner, deal.StageQualification)
	if err != nil {
		t.Fatalf("store.CreateDeal: %v", err)
	}
	return d
}

// NewDealAt creates a deal and advances it directly to the given stage by
// writing the stage column, bypassing the engine. Tests use this to set up
// scenarios without walking the full pipeline.
func NewDealAt(t testing.TB, st *store.Store, title, owner string, stage deal.Stage) *deal.Deal {
	t.Helper()

	d := NewDeal(t, st, title, owner)
	record, err := st.CommitTransition(context.Background(), store.CommitTransitionParams{
		Deal:   d,
		Target: stage,
		Actor:  "testsupport",
		Reason: "test setup",
		Activity: deal.Activity{
			DealID:      d.ID,
			Actor:       "testsupport",
			Action:      "stage.changed",
			Description: "test setup",
		},
	})
	if err != nil {
		t.Fatalf("store.CommitTransition: %v", err)
	}
	if record == nil {
		t.Fatal("expected transition record")
	}
	return d
}

// SeedApproval records an approval decision for a (deal, gate-stage) pair.
func SeedApproval(t testing.TB, st *store.Store, dealID int64, approvalType deal.Stage, status deal.ApprovalStatus) {
	t.Helper()

	if err := st.SetApproval(context.Background(), dealID, approvalType, status); err != nil {
		t.Fatalf("store.SetApproval: %v", err)
	}
}
