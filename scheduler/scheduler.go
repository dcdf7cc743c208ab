// Package scheduler owns the watch lifecycle: the tier schedule created at
// subscription time, the per-cycle re-evaluation of due tiers, rescheduling
// as the consensus estimate drifts, and the one-shot terminal transition
// when the target height is reached.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/chainpulse/blockwatch/delivery"
	"github.com/chainpulse/blockwatch/estimation"
	"github.com/chainpulse/blockwatch/models"
	"github.com/chainpulse/blockwatch/store"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

const (
	defaultDueBatchSize       = 50
	defaultReconcileBatchSize = 20
	defaultSubscribeTimeout   = 10 * time.Second
)

// ErrNoDeliveryChannel rejects subscriptions without any outbound channel.
var ErrNoDeliveryChannel = errors.New("at least one delivery channel (webhook or email) is required")

// ErrCycleBusy is returned when another instance holds the cycle lock.
var ErrCycleBusy = errors.New("another processing cycle holds the lock")

type Config struct {
	DueBatchSize       int
	ReconcileBatchSize int
	SubscribeTimeout   time.Duration
}

// ItemResult is one item's outcome within a processing cycle. Items are
// independent: a failed item never aborts the batch.
type ItemResult struct {
	WatchID        uuid.UUID  `json:"watch_id"`
	NotificationID *uuid.UUID `json:"notification_id,omitempty"`
	Tier           string     `json:"tier,omitempty"`
	Status         string     `json:"status"`
	Detail         string     `json:"detail,omitempty"`
}

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Scheduler struct {
	log           *slog.Logger
	estimator     estimation.Estimator
	watches       store.WatchRepository
	notifications store.NotificationRepository
	sender        delivery.Sender
	locker        store.CycleLocker
	cfg           Config
	now           func() time.Time
}

func New(
	log *slog.Logger,
	estimator estimation.Estimator,
	watches store.WatchRepository,
	notifications store.NotificationRepository,
	sender delivery.Sender,
	locker store.CycleLocker,
	cfg Config,
) *Scheduler {
	if cfg.DueBatchSize <= 0 {
		cfg.DueBatchSize = defaultDueBatchSize
	}
	if cfg.ReconcileBatchSize <= 0 {
		cfg.ReconcileBatchSize = defaultReconcileBatchSize
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = defaultSubscribeTimeout
	}
	return &Scheduler{
		log:           log.With("module", "scheduler"),
		estimator:     estimator,
		watches:       watches,
		notifications: notifications,
		sender:        sender,
		locker:        locker,
		cfg:           cfg,
		now:           time.Now,
	}
}

type SubscribeRequest struct {
	Owner        string
	Network      models.Network
	TargetHeight int64
	Timezone     string
	Title        string
	WebhookURL   *string
	Email        *string
}

// Subscribe estimates the target's time, creates the watch, and creates tier
// notifications for every tier still in the future under that estimate.
func (s *Scheduler) Subscribe(ctx context.Context, req SubscribeRequest) (*models.BlockWatch, []models.Notification, error) {
	hasWebhook := req.WebhookURL != nil && *req.WebhookURL != ""
	hasEmail := req.Email != nil && *req.Email != ""
	if !hasWebhook && !hasEmail {
		return nil, nil, ErrNoDeliveryChannel
	}

	estCtx, cancel := context.WithTimeout(ctx, s.cfg.SubscribeTimeout)
	defer cancel()
	est, err := s.estimator.TimeForBlock(estCtx, req.Network, req.TargetHeight)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	watch := &models.BlockWatch{
		ID:            uuid.New(),
		Owner:         req.Owner,
		Network:       req.Network,
		TargetHeight:  req.TargetHeight,
		CurrentHeight: est.CurrentHeight,
		EstimatedAt:   est.EstimatedAt,
		Timezone:      req.Timezone,
		Title:         req.Title,
		WebhookURL:    req.WebhookURL,
		Email:         req.Email,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	notifications := BuildSchedule(watch.ID, est.EstimatedAt, now)

	if err := s.watches.CreateWithNotifications(ctx, watch, notifications); err != nil {
		return nil, nil, errors.Errorf("persist watch: %w", err)
	}
	s.log.Info("Created watch",
		"watchID", watch.ID,
		"network", watch.Network,
		"targetHeight", watch.TargetHeight,
		"estimatedAt", watch.EstimatedAt,
		"tiers", len(notifications),
	)
	return watch, notifications, nil
}

// Cancel deletes the watch and its notifications for the owning caller.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID, owner string) error {
	return s.watches.Delete(ctx, id, owner)
}

// RunCycle executes one processing cycle: the due-tier pass followed by the
// reconciliation pass. Cycles never overlap; when a locker is configured it
// enforces that across instances.
func (s *Scheduler) RunCycle(ctx context.Context) ([]ItemResult, error) {
	if s.locker != nil {
		acquired, err := s.locker.TryAcquireCycleLock(ctx)
		if err != nil {
			return nil, errors.Errorf("acquire cycle lock: %w", err)
		}
		if !acquired {
			return nil, ErrCycleBusy
		}
		defer func() {
			if err := s.locker.ReleaseCycleLock(ctx); err != nil {
				s.log.Error("Failed to release cycle lock", "error", err)
			}
		}()
	}

	start := s.now()
	results := s.duePass(ctx)
	results = append(results, s.reconcilePass(ctx)...)
	observeCycle(time.Since(start), results)

	s.log.Info("Cycle complete", "items", len(results), "duration", time.Since(start))
	return results, nil
}

// duePass re-evaluates every unsent notification whose scheduled time has
// elapsed, bounded to one batch.
func (s *Scheduler) duePass(ctx context.Context) []ItemResult {
	due, err := s.notifications.ListDue(ctx, s.now(), s.cfg.DueBatchSize)
	if err != nil {
		s.log.Error("Failed to list due notifications", "error", err)
		return []ItemResult{{Status: StatusFailed, Detail: "list due notifications: " + err.Error()}}
	}

	results := make([]ItemResult, 0, len(due))
	for _, notification := range due {
		results = append(results, s.processDue(ctx, notification))
	}
	return results
}

func (s *Scheduler) processDue(ctx context.Context, notification models.Notification) ItemResult {
	result := ItemResult{
		WatchID:        notification.WatchID,
		NotificationID: &notification.ID,
		Tier:           notification.Tier.String(),
	}

	watch, err := s.watches.Get(ctx, notification.WatchID)
	if err != nil {
		result.Status = StatusFailed
		result.Detail = "load watch: " + err.Error()
		return result
	}

	est, err := s.estimator.TimeForBlock(ctx, watch.Network, watch.TargetHeight)
	if err != nil {
		var reached *models.AlreadyReachedError
		if errors.As(err, &reached) {
			return s.handleReached(ctx, watch, result, reached.CurrentHeight)
		}
		result.Status = StatusFailed
		result.Detail = "estimate: " + err.Error()
		return result
	}

	if err := s.watches.UpdateEstimate(ctx, watch.ID, est.CurrentHeight, est.EstimatedAt); err != nil {
		result.Status = StatusFailed
		result.Detail = "update estimate: " + err.Error()
		return result
	}
	s.rescheduleFutureTiers(ctx, watch.ID, notification.ID, est.EstimatedAt)

	msg := delivery.Message{
		Kind:            delivery.KindProgress,
		WatchID:         watch.ID,
		Title:           watch.Title,
		Tier:            notification.Tier,
		Network:         watch.Network,
		TargetHeight:    watch.TargetHeight,
		CurrentHeight:   est.CurrentHeight,
		BlocksRemaining: est.BlocksRemaining,
		EstimatedAt:     est.EstimatedAt,
		Timezone:        watch.Timezone,
		CalendarLinks:   delivery.CalendarLinksFor(watch.Title, watch.Network, watch.TargetHeight, est.EstimatedAt),
	}
	if err := s.sender.Send(ctx, watch, msg); err != nil {
		result.Status = StatusFailed
		result.Detail = "deliver: " + err.Error()
		return result
	}

	if err := s.notifications.MarkSent(ctx, notification.ID, s.now()); err != nil {
		result.Status = StatusFailed
		result.Detail = "mark sent: " + err.Error()
		return result
	}
	observeNotificationSent(string(delivery.KindProgress), notification.Tier)
	result.Status = StatusSent
	return result
}

// rescheduleFutureTiers moves every other unsent tier of the watch to its
// offset under the refreshed estimate. A tier whose new time has already
// elapsed becomes immediately due and fires on the next pass rather than
// waiting out its stale schedule.
func (s *Scheduler) rescheduleFutureTiers(ctx context.Context, watchID uuid.UUID, current uuid.UUID, estimatedAt time.Time) {
	unsent, err := s.notifications.ListUnsentByWatch(ctx, watchID)
	if err != nil {
		s.log.Error("Failed to list unsent tiers for reschedule", "watchID", watchID, "error", err)
		return
	}
	for _, n := range unsent {
		if n.ID == current {
			continue
		}
		newTime := estimatedAt.Add(-n.Tier.Offset())
		if err := s.notifications.Reschedule(ctx, n.ID, newTime); err != nil {
			s.log.Error("Failed to reschedule tier", "notificationID", n.ID, "tier", n.Tier, "error", err)
		}
	}
}

// handleReached performs the terminal transition. It is reentrant-safe: once
// the latch is set no second terminal message is ever dispatched, only the
// mass mark-as-sent is repeated.
func (s *Scheduler) handleReached(ctx context.Context, watch *models.BlockWatch, result ItemResult, currentHeight int64) ItemResult {
	if !watch.Reached() {
		msg := delivery.Message{
			Kind:            delivery.KindReached,
			WatchID:         watch.ID,
			Title:           watch.Title,
			Network:         watch.Network,
			TargetHeight:    watch.TargetHeight,
			CurrentHeight:   currentHeight,
			BlocksRemaining: 0,
			EstimatedAt:     s.now(),
			Timezone:        watch.Timezone,
		}
		if err := s.sender.Send(ctx, watch, msg); err != nil {
			// Latch stays unset so the reconciliation pass retries the
			// terminal dispatch on a later cycle. Pending tiers are still
			// invalidated below.
			result.Status = StatusFailed
			result.Detail = "deliver reached: " + err.Error()
			s.markAllSent(ctx, watch.ID)
			return result
		}
		if err := s.watches.SetReachedNotified(ctx, watch.ID, s.now()); err != nil {
			result.Status = StatusFailed
			result.Detail = "set reached latch: " + err.Error()
			s.markAllSent(ctx, watch.ID)
			return result
		}
		observeNotificationSent(string(delivery.KindReached), "")
		s.log.Info("Watch reached target", "watchID", watch.ID, "targetHeight", watch.TargetHeight)
	}

	s.markAllSent(ctx, watch.ID)
	result.Status = StatusSent
	result.Detail = "target reached"
	return result
}

func (s *Scheduler) markAllSent(ctx context.Context, watchID uuid.UUID) {
	if err := s.notifications.MarkAllSentForWatch(ctx, watchID, s.now()); err != nil {
		s.log.Error("Failed to mark pending tiers sent", "watchID", watchID, "error", err)
	}
}

// reconcilePass catches watches with no unsent tiers left before the target
// was confirmed reached, including watches created too close to their target
// for any tier to be scheduled. They still owe exactly one terminal
// notification.
func (s *Scheduler) reconcilePass(ctx context.Context) []ItemResult {
	watches, err := s.watches.ListExhausted(ctx, s.cfg.ReconcileBatchSize)
	if err != nil {
		s.log.Error("Failed to list exhausted watches", "error", err)
		return []ItemResult{{Status: StatusFailed, Detail: "list exhausted watches: " + err.Error()}}
	}

	results := make([]ItemResult, 0, len(watches))
	for i := range watches {
		watch := &watches[i]
		result := ItemResult{WatchID: watch.ID}

		_, err := s.estimator.TimeForBlock(ctx, watch.Network, watch.TargetHeight)
		var reached *models.AlreadyReachedError
		switch {
		case errors.As(err, &reached):
			results = append(results, s.handleReached(ctx, watch, result, reached.CurrentHeight))
		case err != nil:
			result.Status = StatusFailed
			result.Detail = "estimate: " + err.Error()
			results = append(results, result)
		default:
			// Target still ahead; nothing owed yet.
		}
	}
	return results
}
