package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
)

type NotificationRepo struct {
	DB DBTX
}

const createNotification = `-- name: CreateNotification
INSERT INTO notifications (id, user_id, type, title, message, is_read, related_id, related_type, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, user_id, type, title, message, is_read, related_id, related_type, created_at
`

func (r *NotificationRepo) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	rows, _ := r.DB.Query(ctx, createNotification,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.IsRead, n.RelatedID, n.RelatedType, n.CreatedAt,
	)
	n, err := pgx.CollectOneRow(rows, rowToNotification)
	if err != nil {
		return n, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}

const listNotifications = `-- name: ListForUser
SELECT id, user_id, type, title, message, is_read, related_id, related_type, created_at
FROM notifications
WHERE user_id = $1
ORDER BY
	CASE WHEN $2 THEN created_at END ASC,
	CASE WHEN NOT $2 THEN created_at END DESC
LIMIT $3
`

func (r *NotificationRepo) ListForUser(ctx context.Context, userID uuid.UUID, opts repository.ListNotificationsOpts) ([]models.Notification, error) {
	var limit any
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	rows, _ := r.DB.Query(ctx, listNotifications, userID, opts.OldestFirst, limit)
	notifications, err := pgx.CollectRows(rows, rowToNotification)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return notifications, nil
}

const markRead = `-- name: MarkRead
UPDATE notifications
SET is_read = TRUE
WHERE id = $1 AND user_id = $2
RETURNING id, user_id, type, title, message, is_read, related_id, related_type, created_at
`

func (r *NotificationRepo) MarkRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) (models.Notification, error) {
	rows, _ := r.DB.Query(ctx, markRead, id, userID)
	n, err := pgx.CollectOneRow(rows, rowToNotification)

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, pgx.ErrNoRows):
		return n, apperrors.ErrNotificationNotFound
	default:
		return n, fmt.Errorf("db error: %w", err)
	}
}

const markAllRead = `-- name: MarkAllRead
UPDATE notifications
SET is_read = TRUE
WHERE user_id = $1 AND is_read = FALSE
`

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, markAllRead, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

const unreadCount = `-- name: UnreadCount
SELECT count(*) FROM notifications
WHERE user_id = $1 AND is_read = FALSE
`

func (r *NotificationRepo) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB.QueryRow(ctx, unreadCount, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func rowToNotification(row pgx.CollectableRow) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.RelatedID, &n.RelatedType, &n.CreatedAt)
	return n, err
}
