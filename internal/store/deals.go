package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealpipe/internal/deal"
)

// CreateDeal inserts a new deal at the given initial stage.
func (s *Store) CreateDeal(ctx context.Context, title, owner string, initial deal.Stage) (*deal.Deal, error) {
	if _, ok := deal.ParseStage(string(initial)); !ok {
		return nil, fmt.Errorf("create deal: unknown stage %q", initial)
	}
	now := time.Now().UTC()
	timestamp := formatTime(now)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO deals (title, owner, stage, stage_entered_at, version, created_at, updated_at)
         VALUES (?, ?, ?, ?, 1, ?, ?)`,
		title,
		owner,
		initial,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert deal: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetDeal(ctx, id)
}

// GetDeal fetches a deal by identifier. A missing deal returns (nil, nil).
func (s *Store) GetDeal(ctx context.Context, id int64) (*deal.Deal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = ?`, id)
	d, err := scanDeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deal: %w", err)
	}
	return d, nil
}

// ListDeals returns deals filtered by stage set (or all deals when no stage
// is provided), ordered by creation time.
func (s *Store) ListDeals(ctx context.Context, stages ...deal.Stage) ([]*deal.Deal, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + dealColumns + ` FROM deals`
	orderClause := ` ORDER BY created_at, id`

	if len(stages) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(stages))
		args := make([]any, len(stages))
		for i, stage := range stages {
			args[i] = stage
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE stage IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var deals []*deal.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// CommitTransitionParams carries everything the atomic transition commit
// writes: the deal snapshot the validation was based on (stage and version
// anchor the optimistic check), the target stage, and the audit activity.
type CommitTransitionParams struct {
	Deal     *deal.Deal
	Target   deal.Stage
	Actor    string
	Reason   string
	Activity deal.Activity
	Now      time.Time
}

// CommitTransition atomically updates the deal's stage, appends exactly one
// stage transition record, and appends the audit activity. The update is
// guarded by the deal's version: if the row changed since the snapshot was
// read, nothing is written and deal.ErrConcurrentModification is returned.
func (s *Store) CommitTransition(ctx context.Context, p CommitTransitionParams) (*deal.StageTransitionRecord, error) {
	if p.Deal == nil {
		return nil, errors.New("deal is nil")
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	timestamp := formatTime(now)
	duration := now.Sub(p.Deal.StageEnteredAt)
	if duration < 0 {
		duration = 0
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE deals
         SET stage = ?, stage_entered_at = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND version = ? AND stage = ?`,
		p.Target,
		timestamp,
		timestamp,
		p.Deal.ID,
		p.Deal.Version,
		p.Deal.Stage,
	)
	if err != nil {
		return nil, fmt.Errorf("update deal stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM deals WHERE id = ?`, p.Deal.ID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check deal existence: %w", err)
		}
		if exists == 0 {
			return nil, deal.Wrap(deal.ErrNotFound, "store", "commit transition",
				fmt.Sprintf("deal %d no longer exists", p.Deal.ID), nil)
		}
		return nil, deal.Wrap(deal.ErrConcurrentModification, "store", "commit transition",
			fmt.Sprintf("deal %d changed since read at version %d", p.Deal.ID, p.Deal.Version), nil)
	}

	transitionRes, err := tx.ExecContext(
		ctx,
		`INSERT INTO stage_transitions (deal_id, from_stage, to_stage, actor, reason, duration_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Deal.ID,
		p.Deal.Stage,
		p.Target,
		p.Actor,
		nullableString(p.Reason),
		duration.Milliseconds(),
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert stage transition: %w", err)
	}
	transitionID, err := transitionRes.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("transition insert id: %w", err)
	}

	if err := insertActivity(ctx, tx, p.Activity, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	fromStage := p.Deal.Stage
	p.Deal.Stage = p.Target
	p.Deal.StageEnteredAt = now
	p.Deal.Version++
	p.Deal.UpdatedAt = now

	return &deal.StageTransitionRecord{
		ID:             transitionID,
		DealID:         p.Deal.ID,
		FromStage:      fromStage,
		ToStage:        p.Target,
		Actor:          p.Actor,
		Reason:         p.Reason,
		DurationInPrev: duration,
		CreatedAt:      now,
	}, nil
}

const dealColumns = "id, title, owner, stage, stage_entered_at, version, created_at, updated_at"

func scanDeal(scanner interface{ Scan(dest ...any) error }) (*deal.Deal, error) {
	var (
		id         int64
		title      string
		owner      string
		stageStr   string
		enteredRaw string
		version    int64
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &title, &owner, &stageStr, &enteredRaw, &version, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	d := &deal.Deal{
		ID:      id,
		Title:   title,
		Owner:   owner,
		Stage:   deal.Stage(stageStr),
		Version: version,
	}
	if entered, err := parseTimeString(enteredRaw); err == nil {
		d.StageEnteredAt = entered
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		d.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		d.UpdatedAt = updated
	}
	return d, nil
}

func insertActivity(ctx context.Context, tx *sql.Tx, a deal.Activity, now time.Time) error {
	metadataJSON := ""
	if len(a.Metadata) > 0 {
		encoded, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("marshal activity metadata: %w", err)
		}
		metadataJSON = string(encoded)
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO activities (deal_id, actor, action, description, metadata_json, is_ai_action, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.DealID,
		nullableString(a.Actor),
		a.Action,
		nullableString(a.Description),
		nullableString(metadataJSON),
		boolToInt(a.IsAIAction),
		formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}
