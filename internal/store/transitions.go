package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dealpipe/internal/deal"
)

// ListTransitions returns stage transition history for a deal, newest first,
// paginated so callers never load unbounded history.
func (s *Store) ListTransitions(ctx context.Context, dealID int64, limit, offset int) ([]*deal.StageTransitionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, deal_id, from_stage, to_stage, actor, reason, duration_ms, created_at
         FROM stage_transitions WHERE deal_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		dealID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var records []*deal.StageTransitionRecord
	for rows.Next() {
		record, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountTransitions returns the number of history records for a deal.
func (s *Store) CountTransitions(ctx context.Context, dealID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM stage_transitions WHERE deal_id = ?`, dealID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transitions: %w", err)
	}
	return count, nil
}

func scanTransition(scanner interface{ Scan(dest ...any) error }) (*deal.StageTransitionRecord, error) {
	var (
		id         int64
		dealID     int64
		fromStage  string
		toStage    string
		actor      string
		reason     sql.NullString
		durationMS int64
		createdRaw string
	)
	if err := scanner.Scan(&id, &dealID, &fromStage, &toStage, &actor, &reason, &durationMS, &createdRaw); err != nil {
		return nil, err
	}

	record := &deal.StageTransitionRecord{
		ID:             id,
		DealID:         dealID,
		FromStage:      deal.Stage(fromStage),
		ToStage:        deal.Stage(toStage),
		Actor:          actor,
		Reason:         reason.String,
		DurationInPrev: time.Duration(durationMS) * time.Millisecond,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}
