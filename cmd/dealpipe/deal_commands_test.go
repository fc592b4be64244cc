package main

import (
	"testing"
)

func TestAddAndListDeals(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "add", "Radar Modernization", "--owner", "alice")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "created at Qualification")

	out, err = runCLI(t, env, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "Radar Modernization")
	requireContains(t, out, "alice")

	out, err = runCLI(t, env, "list", "--stage", "closed_won")
	if err != nil {
		t.Fatalf("list --stage: %v", err)
	}
	requireContains(t, out, "No deals found")

	if _, err := runCLI(t, env, "list", "--stage", "warehouse"); err == nil {
		t.Fatal("expected unknown stage filter to fail")
	}
}

func TestTransitionAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, env, "add", "Satellite Uplink", "--owner", "bob"); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := runCLI(t, env, "transition", "1", "capture_plan", "--actor", "bob", "--reason", "qualified")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	requireContains(t, out, "moved from Qualification to Capture Plan")

	// An edge outside the graph is rejected.
	if _, err := runCLI(t, env, "transition", "1", "closed_won", "--actor", "bob"); err == nil {
		t.Fatal("expected invalid edge to fail")
	}

	out, err = runCLI(t, env, "show", "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "Satellite Uplink")
	requireContains(t, out, "Stage: Capture Plan")
	requireContains(t, out, "Proposal Dev")
}

func TestApproveEnablesGatedTransition(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, env, "add", "Gated Deal", "--owner", "carol"); err != nil {
		t.Fatalf("add: %v", err)
	}
	for _, target := range []string{"capture_plan", "proposal_dev", "final_review"} {
		if _, err := runCLI(t, env, "transition", "1", target, "--actor", "carol"); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}

	if _, err := runCLI(t, env, "transition", "1", "submit", "--actor", "carol"); err == nil {
		t.Fatal("expected gated transition to fail without approval")
	}

	out, err := runCLI(t, env, "approve", "1", "submit", "--status", "approved")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	requireContains(t, out, "approved")

	out, err = runCLI(t, env, "transition", "1", "submit", "--actor", "carol")
	if err != nil {
		t.Fatalf("transition after approval: %v", err)
	}
	requireContains(t, out, "Submit")
}

func TestHistoryShowsActivityFeed(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, env, "add", "Audited Deal", "--owner", "dave"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := runCLI(t, env, "transition", "1", "capture_plan", "--actor", "dave"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	out, err := runCLI(t, env, "history", "1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "deal.created")
	requireContains(t, out, "stage.changed")
}

func TestJobsReflectQueuedWork(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, env, "add", "Queued Deal", "--owner", "erin"); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Intake enqueues a stage entry job; no daemon is running to claim it.
	out, err := runCLI(t, env, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "stage_entry")
	requireContains(t, out, "pending")

	out, err = runCLI(t, env, "jobs", "stats")
	if err != nil {
		t.Fatalf("jobs stats: %v", err)
	}
	requireContains(t, out, "pending")

	out, err = runCLI(t, env, "tasks", "list", "--deal", "1")
	if err != nil {
		t.Fatalf("tasks list: %v", err)
	}
	requireContains(t, out, "No tasks found")
}
