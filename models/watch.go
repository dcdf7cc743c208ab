package models

import (
	"time"

	"github.com/google/uuid"
)

// BlockWatch is a subscription to a future block height. The scheduler
// refreshes CurrentHeight and EstimatedAt on every re-evaluation cycle.
// ReachedNotifiedAt is a one-shot latch: once set, no second terminal
// "reached" notification is ever dispatched for this watch.
type BlockWatch struct {
	ID                uuid.UUID
	Owner             string
	Network           Network
	TargetHeight      int64
	CurrentHeight     int64
	EstimatedAt       time.Time
	Timezone          string
	Title             string
	WebhookURL        *string
	Email             *string
	ReachedNotifiedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (w *BlockWatch) Reached() bool {
	return w.ReachedNotifiedAt != nil
}

// HasDeliveryChannel reports whether at least one outbound channel is
// configured.
func (w *BlockWatch) HasDeliveryChannel() bool {
	return (w.WebhookURL != nil && *w.WebhookURL != "") || (w.Email != nil && *w.Email != "")
}

// Notification is one tier alert row, unique per (watch, tier). It may be
// rescheduled while unsent; once sent it is immutable.
type Notification struct {
	ID           uuid.UUID
	WatchID      uuid.UUID
	Tier         Tier
	ScheduledFor time.Time
	Sent         bool
	SentAt       *time.Time
}
