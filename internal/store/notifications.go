package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dealpipe/internal/deal"
)

// UpsertNotification inserts a notification unless one already exists for the
// natural key (user, entity type, entity id). The return value reports
// whether a new row was written; re-raising an existing key is a no-op.
func (s *Store) UpsertNotification(ctx context.Context, n deal.Notification) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO notifications (user_id, entity_type, entity_id, type, title, message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (user_id, entity_type, entity_id) DO NOTHING`,
		n.UserID,
		n.EntityType,
		n.EntityID,
		n.Type,
		n.Title,
		nullableString(n.Message),
		formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("upsert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListNotifications returns notifications for a user ordered by creation.
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]*deal.Notification, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, entity_type, entity_id, type, title, message, created_at
         FROM notifications WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*deal.Notification
	for rows.Next() {
		var (
			n          deal.Notification
			message    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.EntityType, &n.EntityID, &n.Type, &n.Title, &message, &createdRaw); err != nil {
			return nil, err
		}
		n.Message = message.String
		if created, err := parseTimeString(createdRaw); err == nil {
			n.CreatedAt = created
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}
