package store

import (
	"context"
	"fmt"
	"time"

	"dealpipe/internal/deal"
)

// GateDecision reports whether a pending or approved decision exists for a
// (deal, gate-stage) pair. This is the read surface the workflow engine
// consumes; approval records themselves are owned by the approvals subsystem.
func (s *Store) GateDecision(ctx context.Context, dealID int64, approvalType deal.Stage) (deal.GateDecision, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status FROM approvals WHERE deal_id = ? AND approval_type = ?`,
		dealID, approvalType,
	)
	if err != nil {
		return deal.GateDecision{}, fmt.Errorf("query approvals: %w", err)
	}
	defer rows.Close()

	var decision deal.GateDecision
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return deal.GateDecision{}, err
		}
		switch deal.ApprovalStatus(status) {
		case deal.ApprovalPending:
			decision.HasPending = true
		case deal.ApprovalApproved:
			decision.HasApproved = true
		}
	}
	return decision, rows.Err()
}

// SetApproval records or updates the decision for a (deal, gate-stage) pair.
// The approvals subsystem calls this; the engine never does.
func (s *Store) SetApproval(ctx context.Context, dealID int64, approvalType deal.Stage, status deal.ApprovalStatus) error {
	timestamp := formatTime(time.Now())
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO approvals (deal_id, approval_type, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (deal_id, approval_type) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		dealID,
		approvalType,
		status,
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	return nil
}
