package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/chainpulse/blockwatch/models"
	"github.com/chainpulse/blockwatch/store"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

type WatchRepo struct {
	db *DB
}

func NewWatchRepo(db *DB) *WatchRepo {
	return &WatchRepo{db: db}
}

var _ store.WatchRepository = &WatchRepo{}

func (r *WatchRepo) CreateWithNotifications(
	ctx context.Context, watch *models.BlockWatch, notifications []models.Notification,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO block_watches
			(id, owner, network, target_height, current_height, estimated_at,
			 timezone, title, webhook_url, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, watch.ID, watch.Owner, watch.Network, watch.TargetHeight, watch.CurrentHeight,
		watch.EstimatedAt, watch.Timezone, watch.Title, watch.WebhookURL, watch.Email, watch.CreatedAt)
	if err != nil {
		return errors.Errorf("insert watch: %w", err)
	}

	for _, n := range notifications {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO notifications (id, watch_id, tier, scheduled_for, sent)
			VALUES ($1, $2, $3, $4, false)
		`, n.ID, n.WatchID, n.Tier, n.ScheduledFor)
		if err != nil {
			return errors.Errorf("insert notification tier %s: %w", n.Tier, err)
		}
	}
	return tx.Commit()
}

const watchColumns = `
	id, owner, network, target_height, current_height, estimated_at,
	timezone, title, webhook_url, email, reached_notified_at, created_at, updated_at`

func (r *WatchRepo) Get(ctx context.Context, id uuid.UUID) (*models.BlockWatch, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+watchColumns+` FROM block_watches WHERE id = $1`, id)
	watch, err := scanWatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Errorf("get watch: %w", err)
	}
	return watch, nil
}

func (r *WatchRepo) Delete(ctx context.Context, id uuid.UUID, owner string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM block_watches WHERE id = $1 AND owner = $2`, id, owner)
	if err != nil {
		return errors.Errorf("delete watch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Errorf("delete watch rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *WatchRepo) UpdateEstimate(ctx context.Context, id uuid.UUID, currentHeight int64, estimatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE block_watches
		SET current_height = $2, estimated_at = $3, updated_at = now()
		WHERE id = $1
	`, id, currentHeight, estimatedAt)
	if err != nil {
		return errors.Errorf("update watch estimate: %w", err)
	}
	return nil
}

func (r *WatchRepo) SetReachedNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE block_watches
		SET reached_notified_at = $2, updated_at = now()
		WHERE id = $1 AND reached_notified_at IS NULL
	`, id, at)
	if err != nil {
		return errors.Errorf("set reached latch: %w", err)
	}
	return nil
}

func (r *WatchRepo) ListExhausted(ctx context.Context, limit int) ([]models.BlockWatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+watchColumns+`
		FROM block_watches w
		WHERE w.reached_notified_at IS NULL
		  AND (w.webhook_url IS NOT NULL OR w.email IS NOT NULL)
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n WHERE n.watch_id = w.id AND NOT n.sent
		  )
		ORDER BY w.updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Errorf("list exhausted watches: %w", err)
	}
	defer rows.Close()

	var watches []models.BlockWatch
	for rows.Next() {
		watch, err := scanWatch(rows)
		if err != nil {
			return nil, errors.Errorf("scan watch: %w", err)
		}
		watches = append(watches, *watch)
	}
	return watches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatch(row rowScanner) (*models.BlockWatch, error) {
	var w models.BlockWatch
	err := row.Scan(
		&w.ID, &w.Owner, &w.Network, &w.TargetHeight, &w.CurrentHeight, &w.EstimatedAt,
		&w.Timezone, &w.Title, &w.WebhookURL, &w.Email, &w.ReachedNotifiedAt,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
