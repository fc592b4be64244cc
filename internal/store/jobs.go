package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle of a background job row.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is a queued background job persisted for at-least-once delivery.
type Job struct {
	ID          int64
	Name        string
	PayloadJSON string
	Status      JobStatus
	Attempts    int
	RunAt       time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EnqueueJob appends a job to the queue for immediate execution. The payload
// is serialized as JSON.
func (s *Store) EnqueueJob(ctx context.Context, name string, payload any) (int64, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal job payload: %w", err)
	}
	timestamp := formatTime(time.Now())

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (name, payload_json, status, attempts, run_at, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?, ?)`,
		name,
		string(encoded),
		JobPending,
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("job insert id: %w", err)
	}
	return id, nil
}

// ClaimNextJob atomically marks the oldest runnable pending job as running
// and returns it. Returns (nil, nil) when no job is due.
func (s *Store) ClaimNextJob(ctx context.Context, now time.Time) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE status = ? AND run_at <= ? ORDER BY run_at, id LIMIT 1`,
		JobPending,
		formatTime(now),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next job: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ? AND status = ?`,
		JobRunning,
		formatTime(now),
		job.ID,
		JobPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the claim to a concurrent runner; caller polls again.
		return nil, nil
	}
	job.Status = JobRunning
	job.Attempts++
	return job, nil
}

// MarkJobDone records successful completion.
func (s *Store) MarkJobDone(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
		JobDone,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// RescheduleJob returns a job to pending with a future run time after a
// transient failure.
func (s *Store) RescheduleJob(ctx context.Context, id int64, runAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, run_at = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		JobPending,
		formatTime(runAt),
		nullableString(lastError),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	return nil
}

// MarkJobFailed records terminal failure for operator inspection.
func (s *Store) MarkJobFailed(ctx context.Context, id int64, lastError string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		JobFailed,
		nullableString(lastError),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// ListJobs returns jobs filtered by status set (or all jobs when no status is
// provided), oldest first.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RetryFailedJobs moves failed jobs back to pending for another delivery.
// With no ids, all failed jobs are retried.
func (s *Store) RetryFailedJobs(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := formatTime(time.Now())
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, attempts = 0, run_at = ?, last_error = NULL, updated_at = ? WHERE status = ?`,
			JobPending,
			timestamp,
			timestamp,
			JobFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, JobPending, timestamp, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, attempts = 0, run_at = ?, last_error = NULL, updated_at = ?
         WHERE id IN (`+placeholders+`) AND status = '`+string(JobFailed)+`'`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckJobs returns running jobs to pending. Called at daemon startup to
// recover jobs interrupted mid-execution; redelivery is safe because all
// handlers are idempotent.
func (s *Store) ResetStuckJobs(ctx context.Context) (int64, error) {
	timestamp := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, run_at = ?, updated_at = ? WHERE status = ?`,
		JobPending,
		timestamp,
		timestamp,
		JobRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// JobStats returns a count of jobs grouped by status.
func (s *Store) JobStats(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const jobColumns = "id, name, payload_json, status, attempts, run_at, last_error, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id         int64
		name       string
		payload    string
		status     string
		attempts   int
		runAtRaw   string
		lastError  sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &name, &payload, &status, &attempts, &runAtRaw, &lastError, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          id,
		Name:        name,
		PayloadJSON: payload,
		Status:      JobStatus(status),
		Attempts:    attempts,
		LastError:   lastError.String,
	}
	if runAt, err := parseTimeString(runAtRaw); err == nil {
		job.RunAt = runAt
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
