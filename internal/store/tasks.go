package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dealpipe/internal/deal"
)

// CreateTaskFromTemplate inserts a task generated for a stage entry. The
// unique (deal, stage, template) constraint makes creation idempotent under
// at-least-once job redelivery; the return value reports whether a new row
// was actually written.
func (s *Store) CreateTaskFromTemplate(ctx context.Context, dealID int64, tmpl deal.TaskTemplate, dueDate *time.Time) (bool, error) {
	timestamp := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO tasks (
            deal_id, stage, template_key, title, description, priority, due_date,
            status, is_ai_generated, is_auto_completable, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dealID,
		tmpl.Stage,
		tmpl.Key,
		tmpl.Title,
		nullableString(tmpl.Description),
		tmpl.DefaultPriority,
		nullableTime(dueDate),
		deal.TaskPending,
		1,
		boolToInt(tmpl.IsAutoCompletable),
		timestamp,
		timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListTasks returns tasks for a deal ordered by creation.
func (s *Store) ListTasks(ctx context.Context, dealID int64) ([]*deal.Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE deal_id = ? ORDER BY id`,
		dealID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// OverdueTask pairs an overdue open task with the owner of its deal, which
// the sweep needs to build the recipient set without a second lookup.
type OverdueTask struct {
	Task      *deal.Task
	DealOwner string
}

// ListOverdueOpenTasks returns open tasks whose due date passed before the
// cutoff, joined with their deal owner, ordered by due date.
func (s *Store) ListOverdueOpenTasks(ctx context.Context, cutoff time.Time) ([]OverdueTask, error) {
	open := deal.OpenTaskStatuses()
	placeholders := make([]string, len(open))
	args := make([]any, 0, len(open)+1)
	for i, status := range open {
		placeholders[i] = "?"
		args = append(args, status)
	}
	args = append(args, formatTime(cutoff))

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+prefixedTaskColumns+`, d.owner
         FROM tasks t JOIN deals d ON d.id = t.deal_id
         WHERE t.status IN (`+strings.Join(placeholders, ", ")+`) AND t.due_date IS NOT NULL AND t.due_date < ?
         ORDER BY t.due_date, t.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	defer rows.Close()

	var overdue []OverdueTask
	for rows.Next() {
		task, owner, err := scanTaskWithOwner(rows)
		if err != nil {
			return nil, err
		}
		overdue = append(overdue, OverdueTask{Task: task, DealOwner: owner})
	}
	return overdue, rows.Err()
}

// UpdateTaskStatus moves a task between lifecycle states. Assignment and
// completion flows live outside this core; the CLI and tests use this.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID int64, status deal.TaskStatus) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		formatTime(time.Now()),
		taskID,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// AssignTask sets the assignee for a task.
func (s *Store) AssignTask(ctx context.Context, taskID int64, assignee string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET assignee = ?, updated_at = ? WHERE id = ?`,
		nullableString(assignee),
		formatTime(time.Now()),
		taskID,
	)
	if err != nil {
		return fmt.Errorf("assign task: %w", err)
	}
	return nil
}

const taskColumns = "id, deal_id, stage, template_key, title, description, priority, due_date, status, assignee, is_ai_generated, is_auto_completable, created_at, updated_at"

const prefixedTaskColumns = "t.id, t.deal_id, t.stage, t.template_key, t.title, t.description, t.priority, t.due_date, t.status, t.assignee, t.is_ai_generated, t.is_auto_completable, t.created_at, t.updated_at"

func collectTasks(rows *sql.Rows) ([]*deal.Task, error) {
	var tasks []*deal.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*deal.Task, error) {
	var (
		id           int64
		dealID       int64
		stage        string
		templateKey  string
		title        string
		description  sql.NullString
		priority     string
		dueRaw       sql.NullString
		status       string
		assignee     sql.NullString
		aiGenerated  int
		autoComplete int
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id, &dealID, &stage, &templateKey, &title, &description, &priority,
		&dueRaw, &status, &assignee, &aiGenerated, &autoComplete, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &deal.Task{
		ID:                id,
		DealID:            dealID,
		Stage:             deal.Stage(stage),
		TemplateKey:       templateKey,
		Title:             title,
		Description:       description.String,
		Priority:          deal.Priority(priority),
		Status:            deal.TaskStatus(status),
		Assignee:          assignee.String,
		IsAIGenerated:     aiGenerated != 0,
		IsAutoCompletable: autoComplete != 0,
	}
	if dueRaw.Valid {
		if due, err := parseTimeString(dueRaw.String); err == nil {
			task.DueDate = &due
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func scanTaskWithOwner(scanner interface{ Scan(dest ...any) error }) (*deal.Task, string, error) {
	var (
		id           int64
		dealID       int64
		stage        string
		templateKey  string
		title        string
		description  sql.NullString
		priority     string
		dueRaw       sql.NullString
		status       string
		assignee     sql.NullString
		aiGenerated  int
		autoComplete int
		createdRaw   string
		updatedRaw   string
		owner        string
	)
	if err := scanner.Scan(
		&id, &dealID, &stage, &templateKey, &title, &description, &priority,
		&dueRaw, &status, &assignee, &aiGenerated, &autoComplete, &createdRaw, &updatedRaw, &owner,
	); err != nil {
		return nil, "", err
	}

	task := &deal.Task{
		ID:                id,
		DealID:            dealID,
		Stage:             deal.Stage(stage),
		TemplateKey:       templateKey,
		Title:             title,
		Description:       description.String,
		Priority:          deal.Priority(priority),
		Status:            deal.TaskStatus(status),
		Assignee:          assignee.String,
		IsAIGenerated:     aiGenerated != 0,
		IsAutoCompletable: autoComplete != 0,
	}
	if dueRaw.Valid {
		if due, err := parseTimeString(dueRaw.String); err == nil {
			task.DueDate = &due
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, owner, nil
}
