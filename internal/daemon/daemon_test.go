package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"dealpipe/internal/api"
	"dealpipe/internal/config"
	"dealpipe/internal/daemon"
	"dealpipe/internal/logging"
	"dealpipe/internal/store"
	"dealpipe/internal/testsupport"
)

func startDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()

	st := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	startDaemon(t, cfg)

	other, err := daemon.New(cfg, testsupport.MustOpenStore(t, cfg), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(context.Background()); err == nil {
		other.Stop()
		t.Fatal("expected second instance to fail to start")
	}
}

func TestDaemonStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.DatabasePath == "" || status.LockFilePath == "" {
		t.Fatalf("incomplete status: %+v", status)
	}
}

func TestAPIDealLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()
	client := &http.Client{Timeout: 5 * time.Second}

	// Intake.
	body, _ := json.Marshal(api.CreateDealRequest{Title: "API Deal", Owner: "alice"})
	resp, err := client.Post(base+"/api/deals", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/deals: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var created api.Deal
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	resp.Body.Close()

	// Valid transition commits and reports the new stage.
	body, _ = json.Marshal(api.TransitionRequest{Target: "capture_plan", Actor: "alice", Reason: "qualified"})
	resp, err = client.Post(fmt.Sprintf("%s/api/deals/%d/transition", base, created.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST transition: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected transition status: %d", resp.StatusCode)
	}
	var moved api.TransitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&moved); err != nil {
		t.Fatalf("decode transition response: %v", err)
	}
	resp.Body.Close()
	if moved.Deal.Stage != "capture_plan" {
		t.Fatalf("unexpected stage: %s", moved.Deal.Stage)
	}

	// Invalid edge is rejected with a classification.
	body, _ = json.Marshal(api.TransitionRequest{Target: "closed_won", Actor: "alice"})
	resp, err = client.Post(fmt.Sprintf("%s/api/deals/%d/transition", base, created.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST invalid transition: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status for invalid edge: %d", resp.StatusCode)
	}
	var failure api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	resp.Body.Close()
	if failure.Kind != "InvalidEdge" {
		t.Fatalf("unexpected error kind: %s", failure.Kind)
	}

	// Detail view includes history and next stages.
	resp, err = client.Get(fmt.Sprintf("%s/api/deals/%d", base, created.ID))
	if err != nil {
		t.Fatalf("GET deal: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected detail status: %d", resp.StatusCode)
	}
	var detail api.DealDetailResponse
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	resp.Body.Close()
	if detail.TotalTransitions != 1 || len(detail.Transitions) != 1 {
		t.Fatalf("unexpected history: %+v", detail)
	}
	if len(detail.NextStages) == 0 {
		t.Fatal("expected next stages")
	}

	// Missing deal is a 404.
	resp, err = client.Get(base + "/api/deals/9999")
	if err != nil {
		t.Fatalf("GET missing deal: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status for missing deal: %d", resp.StatusCode)
	}
}

func TestAPIGatedTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()
	client := &http.Client{Timeout: 5 * time.Second}
	ctx := context.Background()

	created, err := d.Service().Create(ctx, api.CreateDealRequest{Title: "Gated Deal", Owner: "bob"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, target := range []string{"capture_plan", "proposal_dev", "final_review"} {
		if _, err := d.Service().Transition(ctx, created.ID, api.TransitionRequest{Target: target, Actor: "bob"}); err != nil {
			t.Fatalf("Transition to %s: %v", target, err)
		}
	}

	// Without a decision the gate rejects with a conflict.
	body, _ := json.Marshal(api.TransitionRequest{Target: "submit", Actor: "bob"})
	resp, err := client.Post(fmt.Sprintf("%s/api/deals/%d/transition", base, created.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST gated transition: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status for gated transition: %d", resp.StatusCode)
	}

	// Record an approval, then the same request succeeds.
	body, _ = json.Marshal(api.ApprovalRequest{Stage: "submit", Status: "approved"})
	resp, err = client.Post(fmt.Sprintf("%s/api/deals/%d/approve", base, created.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST approve: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected approve status: %d", resp.StatusCode)
	}

	body, _ = json.Marshal(api.TransitionRequest{Target: "submit", Actor: "bob"})
	resp, err = client.Post(fmt.Sprintf("%s/api/deals/%d/transition", base, created.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST approved transition: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status after approval: %d", resp.StatusCode)
	}
}

func TestAPIBearerAuth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "secret-token"
	d := startDaemon(t, cfg)
	base := "http://" + d.APIAddr()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, base+"/api/status", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("GET status with token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if _, ok := status.JobCounts[string(store.JobPending)]; !ok {
		t.Fatalf("expected normalized job counts, got %v", status.JobCounts)
	}
}
