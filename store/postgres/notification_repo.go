package postgres

import (
	"context"
	"time"

	"github.com/chainpulse/blockwatch/models"
	"github.com/chainpulse/blockwatch/store"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

type NotificationRepo struct {
	db *DB
}

func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

var _ store.NotificationRepository = &NotificationRepo{}

const notificationColumns = `id, watch_id, tier, scheduled_for, sent, sent_at`

func (r *NotificationRepo) ListDue(ctx context.Context, asOf time.Time, limit int) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE NOT sent AND scheduled_for <= $1
		ORDER BY scheduled_for
		LIMIT $2
	`, asOf, limit)
	if err != nil {
		return nil, errors.Errorf("list due notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *NotificationRepo) ListUnsentByWatch(ctx context.Context, watchID uuid.UUID) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE watch_id = $1 AND NOT sent
		ORDER BY scheduled_for
	`, watchID)
	if err != nil {
		return nil, errors.Errorf("list unsent notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *NotificationRepo) Reschedule(ctx context.Context, id uuid.UUID, scheduledFor time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET scheduled_for = $2 WHERE id = $1 AND NOT sent
	`, id, scheduledFor)
	if err != nil {
		return errors.Errorf("reschedule notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET sent = true, sent_at = $2 WHERE id = $1 AND NOT sent
	`, id, sentAt)
	if err != nil {
		return errors.Errorf("mark notification sent: %w", err)
	}
	return nil
}

func (r *NotificationRepo) MarkAllSentForWatch(ctx context.Context, watchID uuid.UUID, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET sent = true, sent_at = $2 WHERE watch_id = $1 AND NOT sent
	`, watchID, sentAt)
	if err != nil {
		return errors.Errorf("mark watch notifications sent: %w", err)
	}
	return nil
}

type sqlRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanNotifications(rows sqlRows) ([]models.Notification, error) {
	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.WatchID, &n.Tier, &n.ScheduledFor, &n.Sent, &n.SentAt); err != nil {
			return nil, errors.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
