package scheduler

import (
	"time"

	"github.com/chainpulse/blockwatch/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsSentCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockwatch",
		Name:      "notifications_sent_total",
		Help:      "Notifications dispatched, by kind and tier",
	}, []string{"kind", "tier"})

	cycleItemsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockwatch",
		Name:      "cycle_items_total",
		Help:      "Cycle items processed, by status",
	}, []string{"status"})

	cycleDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Namespace: "blockwatch",
		Name:      "cycle_duration_seconds",
		Help:      "Wall-clock duration of one processing cycle",
	})
)

func observeNotificationSent(kind string, tier models.Tier) {
	notificationsSentCounter.WithLabelValues(kind, tier.String()).Inc()
}

func observeCycle(elapsed time.Duration, results []ItemResult) {
	cycleDuration.Observe(elapsed.Seconds())
	for _, r := range results {
		cycleItemsCounter.WithLabelValues(r.Status).Inc()
	}
}
