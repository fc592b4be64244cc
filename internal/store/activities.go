package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dealpipe/internal/deal"
)

// AppendActivity writes a single audit entry. Activities are append-only.
func (s *Store) AppendActivity(ctx context.Context, a deal.Activity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activity tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertActivity(ctx, tx, a, time.Now().UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activity: %w", err)
	}
	return nil
}

// ListActivities returns audit entries for a deal, newest first, paginated.
func (s *Store) ListActivities(ctx context.Context, dealID int64, limit, offset int) ([]*deal.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, deal_id, actor, action, description, metadata_json, is_ai_action, created_at
         FROM activities WHERE deal_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		dealID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []*deal.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

// HasRecentActivity reports whether an activity with the given action exists
// for the deal with a matching task_id metadata entry newer than the cutoff.
// The overdue sweep uses this to honor the activity dedup window.
func (s *Store) HasRecentActivity(ctx context.Context, dealID int64, action string, taskID int64, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM activities
         WHERE deal_id = ? AND action = ? AND created_at > ?
           AND json_extract(metadata_json, '$.task_id') = ?`,
		dealID,
		action,
		formatTime(since),
		fmt.Sprintf("%d", taskID),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check recent activity: %w", err)
	}
	return count > 0, nil
}

func scanActivity(scanner interface{ Scan(dest ...any) error }) (*deal.Activity, error) {
	var (
		id          int64
		dealID      int64
		actor       sql.NullString
		action      string
		description sql.NullString
		metadataRaw sql.NullString
		isAIAction  int
		createdRaw  string
	)
	if err := scanner.Scan(&id, &dealID, &actor, &action, &description, &metadataRaw, &isAIAction, &createdRaw); err != nil {
		return nil, err
	}

	activity := &deal.Activity{
		ID:          id,
		DealID:      dealID,
		Actor:       actor.String,
		Action:      action,
		Description: description.String,
		IsAIAction:  isAIAction != 0,
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		metadata := make(map[string]string)
		if err := json.Unmarshal([]byte(metadataRaw.String), &metadata); err == nil {
			activity.Metadata = metadata
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		activity.CreatedAt = created
	}
	return activity, nil
}
