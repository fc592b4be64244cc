package main

import "testing"

func TestStageLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"qualification", "Qualification"},
		{"capture_plan", "Capture Plan"},
		{"proposal_dev", "Proposal Dev"},
		{"closed_won", "Closed Won"},
	}
	for _, tt := range tests {
		if got := stageLabel(tt.in); got != tt.want {
			t.Errorf("stageLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestColorizeDisabled(t *testing.T) {
	if got := colorize("running", ansiGreen, false); got != "running" {
		t.Errorf("expected plain text, got %q", got)
	}
	if got := colorize("running", ansiGreen, true); got == "running" {
		t.Error("expected ANSI-wrapped text")
	}
}
