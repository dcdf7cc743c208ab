package scheduler

import (
	"slices"
	"time"

	"github.com/chainpulse/blockwatch/models"
	"github.com/emirpasic/gods/utils"
	"github.com/google/uuid"
)

// BuildSchedule returns one notification per tier whose scheduled time is
// still in the future at now, ordered by scheduled time. Tiers already in
// the past for a short horizon are simply never created.
func BuildSchedule(watchID uuid.UUID, estimatedAt time.Time, now time.Time) []models.Notification {
	notifications := make([]models.Notification, 0, len(models.Tiers))
	for _, tier := range models.Tiers {
		scheduledFor := estimatedAt.Add(-tier.Offset())
		if !scheduledFor.After(now) {
			continue
		}
		notifications = append(notifications, models.Notification{
			ID:           uuid.New(),
			WatchID:      watchID,
			Tier:         tier,
			ScheduledFor: scheduledFor,
		})
	}
	slices.SortFunc(notifications, func(a, b models.Notification) int {
		return utils.TimeComparator(a.ScheduledFor, b.ScheduledFor)
	})
	return notifications
}
