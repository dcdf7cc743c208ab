// Package store declares the persistence interfaces the scheduler and the
// API server depend on. The postgres subpackage implements them.
package store

import (
	"context"
	"time"

	"github.com/chainpulse/blockwatch/models"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a watch does not exist or is not owned by the
// caller.
var ErrNotFound = errors.New("not found")

// WatchRepository provides access to block watch records.
type WatchRepository interface {
	// CreateWithNotifications persists the watch and its initial tier
	// notifications in one transaction.
	CreateWithNotifications(ctx context.Context, watch *models.BlockWatch, notifications []models.Notification) error

	Get(ctx context.Context, id uuid.UUID) (*models.BlockWatch, error)

	// Delete removes the watch and its notifications. The owner must match.
	Delete(ctx context.Context, id uuid.UUID, owner string) error

	// UpdateEstimate stores the refreshed current height and estimated time
	// observed during a processing cycle.
	UpdateEstimate(ctx context.Context, id uuid.UUID, currentHeight int64, estimatedAt time.Time) error

	// SetReachedNotified sets the one-shot reached-latch.
	SetReachedNotified(ctx context.Context, id uuid.UUID, at time.Time) error

	// ListExhausted returns watches with no unsent tier notifications,
	// whose reached-latch is unset, and which have a delivery channel
	// configured. A watch created so close to its target that no tier was
	// scheduled counts from the start. Feeds the reconciliation pass.
	ListExhausted(ctx context.Context, limit int) ([]models.BlockWatch, error)
}

// NotificationRepository provides access to tier notification rows.
type NotificationRepository interface {
	// ListDue returns unsent notifications whose scheduled time has elapsed
	// as of asOf, oldest first, at most limit rows.
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]models.Notification, error)

	ListUnsentByWatch(ctx context.Context, watchID uuid.UUID) ([]models.Notification, error)

	// Reschedule moves an unsent notification to a new scheduled time.
	Reschedule(ctx context.Context, id uuid.UUID, scheduledFor time.Time) error

	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error

	// MarkAllSentForWatch marks every unsent notification of the watch as
	// sent. Used when the target is reached and pending tier alerts become
	// meaningless.
	MarkAllSentForWatch(ctx context.Context, watchID uuid.UUID, sentAt time.Time) error
}

// CycleLocker makes the single-writer cycle assumption explicit when more
// than one scheduler instance runs against the same database.
type CycleLocker interface {
	TryAcquireCycleLock(ctx context.Context) (bool, error)
	ReleaseCycleLock(ctx context.Context) error
}
