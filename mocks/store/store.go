// Package store_mock provides hand-rolled mocks for the store repositories.
package store_mock

import (
	"context"
	"time"

	"github.com/chainpulse/blockwatch/models"
	"github.com/chainpulse/blockwatch/store"
	"github.com/google/uuid"
)

type WatchRepositoryMock struct {
	CreateWithNotificationsFunc func(ctx context.Context, watch *models.BlockWatch, notifications []models.Notification) error
	GetFunc                     func(ctx context.Context, id uuid.UUID) (*models.BlockWatch, error)
	DeleteFunc                  func(ctx context.Context, id uuid.UUID, owner string) error
	UpdateEstimateFunc          func(ctx context.Context, id uuid.UUID, currentHeight int64, estimatedAt time.Time) error
	SetReachedNotifiedFunc      func(ctx context.Context, id uuid.UUID, at time.Time) error
	ListExhaustedFunc           func(ctx context.Context, limit int) ([]models.BlockWatch, error)
}

var _ store.WatchRepository = &WatchRepositoryMock{}

func (m *WatchRepositoryMock) CreateWithNotifications(ctx context.Context, watch *models.BlockWatch, notifications []models.Notification) error {
	return m.CreateWithNotificationsFunc(ctx, watch, notifications)
}

func (m *WatchRepositoryMock) Get(ctx context.Context, id uuid.UUID) (*models.BlockWatch, error) {
	return m.GetFunc(ctx, id)
}

func (m *WatchRepositoryMock) Delete(ctx context.Context, id uuid.UUID, owner string) error {
	return m.DeleteFunc(ctx, id, owner)
}

func (m *WatchRepositoryMock) UpdateEstimate(ctx context.Context, id uuid.UUID, currentHeight int64, estimatedAt time.Time) error {
	return m.UpdateEstimateFunc(ctx, id, currentHeight, estimatedAt)
}

func (m *WatchRepositoryMock) SetReachedNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.SetReachedNotifiedFunc(ctx, id, at)
}

func (m *WatchRepositoryMock) ListExhausted(ctx context.Context, limit int) ([]models.BlockWatch, error) {
	return m.ListExhaustedFunc(ctx, limit)
}

type NotificationRepositoryMock struct {
	ListDueFunc             func(ctx context.Context, asOf time.Time, limit int) ([]models.Notification, error)
	ListUnsentByWatchFunc   func(ctx context.Context, watchID uuid.UUID) ([]models.Notification, error)
	RescheduleFunc          func(ctx context.Context, id uuid.UUID, scheduledFor time.Time) error
	MarkSentFunc            func(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkAllSentForWatchFunc func(ctx context.Context, watchID uuid.UUID, sentAt time.Time) error
}

var _ store.NotificationRepository = &NotificationRepositoryMock{}

func (m *NotificationRepositoryMock) ListDue(ctx context.Context, asOf time.Time, limit int) ([]models.Notification, error) {
	return m.ListDueFunc(ctx, asOf, limit)
}

func (m *NotificationRepositoryMock) ListUnsentByWatch(ctx context.Context, watchID uuid.UUID) ([]models.Notification, error) {
	return m.ListUnsentByWatchFunc(ctx, watchID)
}

func (m *NotificationRepositoryMock) Reschedule(ctx context.Context, id uuid.UUID, scheduledFor time.Time) error {
	return m.RescheduleFunc(ctx, id, scheduledFor)
}

func (m *NotificationRepositoryMock) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return m.MarkSentFunc(ctx, id, sentAt)
}

func (m *NotificationRepositoryMock) MarkAllSentForWatch(ctx context.Context, watchID uuid.UUID, sentAt time.Time) error {
	return m.MarkAllSentForWatchFunc(ctx, watchID, sentAt)
}

type CycleLockerMock struct {
	TryAcquireCycleLockFunc func(ctx context.Context) (bool, error)
	ReleaseCycleLockFunc    func(ctx context.Context) error
}

var _ store.CycleLocker = &CycleLockerMock{}

func (m *CycleLockerMock) TryAcquireCycleLock(ctx context.Context) (bool, error) {
	return m.TryAcquireCycleLockFunc(ctx)
}

func (m *CycleLockerMock) ReleaseCycleLock(ctx context.Context) error {
	return m.ReleaseCycleLockFunc(ctx)
}
