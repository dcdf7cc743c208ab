package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	estimation_mock "github.com/chainpulse/blockwatch/mocks/estimation"
	"github.com/chainpulse/blockwatch/models"
	"github.com/chainpulse/blockwatch/scheduler"
	"github.com/chainpulse/blockwatch/server"
	"github.com/chainpulse/blockwatch/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type cycleRunnerMock struct {
	SubscribeFunc func(ctx context.Context, req scheduler.SubscribeRequest) (*models.BlockWatch, []models.Notification, error)
	CancelFunc    func(ctx context.Context, id uuid.UUID, owner string) error
	RunCycleFunc  func(ctx context.Context) ([]scheduler.ItemResult, error)
}

func (m *cycleRunnerMock) Subscribe(ctx context.Context, req scheduler.SubscribeRequest) (*models.BlockWatch, []models.Notification, error) {
	return m.SubscribeFunc(ctx, req)
}

func (m *cycleRunnerMock) Cancel(ctx context.Context, id uuid.UUID, owner string) error {
	return m.CancelFunc(ctx, id, owner)
}

func (m *cycleRunnerMock) RunCycle(ctx context.Context) ([]scheduler.ItemResult, error) {
	return m.RunCycleFunc(ctx)
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string, hdr map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestEstimateTimeValidation(t *testing.T) {
	srv := server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, &cycleRunnerMock{}, "")
	handler := srv.Handler()

	rec, body := doRequest(t, handler, http.MethodGet, "/api/v1/estimate/time?network=devnet&height=100", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, body["error"], "network")

	rec, body = doRequest(t, handler, http.MethodGet, "/api/v1/estimate/time?network=mainnet&height=-5", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, body["error"], "height")
}

func TestEstimateTimeSuccess(t *testing.T) {
	estimatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	estimator := &estimation_mock.EstimatorMock{
		TimeForBlockFunc: func(_ context.Context, network models.Network, targetHeight int64) (models.BlockEstimate, error) {
			return models.BlockEstimate{
				Network:         network,
				CurrentHeight:   900,
				TargetHeight:    targetHeight,
				BlocksRemaining: targetHeight - 900,
				AvgBlockTimeMs:  3000,
				EstimatedAt:     estimatedAt,
				Confidence:      models.ConfidenceHigh,
			}, nil
		},
	}
	srv := server.New(newTestLogger(), estimator, &cycleRunnerMock{}, "")

	rec, body := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/estimate/time?network=mainnet&height=1000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(100), body["blocks_remaining"])
	require.Equal(t, string(models.ConfidenceHigh), body["confidence"])
}

func TestEstimateTimeDomainErrorsAreUnprocessable(t *testing.T) {
	estimator := &estimation_mock.EstimatorMock{
		TimeForBlockFunc: func(_ context.Context, _ models.Network, _ int64) (models.BlockEstimate, error) {
			return models.BlockEstimate{}, &models.AlreadyReachedError{CurrentHeight: 1200, TargetHeight: 1000}
		},
	}
	srv := server.New(newTestLogger(), estimator, &cycleRunnerMock{}, "")

	rec, body := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/estimate/time?network=mainnet&height=1000", "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "already_reached", body["kind"])
	require.Equal(t, float64(1200), body["current_height"])
}

func TestEstimateTimeSourceExhaustionIsBadGateway(t *testing.T) {
	estimator := &estimation_mock.EstimatorMock{
		TimeForBlockFunc: func(_ context.Context, network models.Network, _ int64) (models.BlockEstimate, error) {
			return models.BlockEstimate{}, &models.AllSourcesFailedError{Network: network}
		},
	}
	srv := server.New(newTestLogger(), estimator, &cycleRunnerMock{}, "")

	rec, _ := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/estimate/time?network=mainnet&height=1000", "", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestEstimateHeightPassesOverrideInMilliseconds(t *testing.T) {
	var gotOverride float64
	estimator := &estimation_mock.EstimatorMock{
		BlockForTimeFunc: func(_ context.Context, network models.Network, targetTime time.Time, overrideMs float64) (models.HeightEstimate, error) {
			gotOverride = overrideMs
			return models.HeightEstimate{Network: network, TargetTime: targetTime, EstimatedHeight: 1012}, nil
		},
	}
	srv := server.New(newTestLogger(), estimator, &cycleRunnerMock{}, "")

	rec, body := doRequest(t, srv.Handler(), http.MethodGet,
		"/api/v1/estimate/height?network=mainnet&time=2026-03-01T12:00:00Z&block_time_seconds=2.5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2500.0, gotOverride)
	require.Equal(t, float64(1012), body["estimated_height"])
}

func TestEstimateHeightRejectsBadInputs(t *testing.T) {
	srv := server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, &cycleRunnerMock{}, "")
	handler := srv.Handler()

	rec, _ := doRequest(t, handler, http.MethodGet, "/api/v1/estimate/height?network=mainnet&time=tomorrow", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, handler, http.MethodGet,
		"/api/v1/estimate/height?network=mainnet&time=2026-03-01T12:00:00Z&block_time_seconds=-1", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWatch(t *testing.T) {
	watchID := uuid.New()
	sched := &cycleRunnerMock{
		SubscribeFunc: func(_ context.Context, req scheduler.SubscribeRequest) (*models.BlockWatch, []models.Notification, error) {
			watch := &models.BlockWatch{
				ID:            watchID,
				Network:       req.Network,
				TargetHeight:  req.TargetHeight,
				CurrentHeight: 900,
				EstimatedAt:   time.Now().Add(time.Hour),
				WebhookURL:    req.WebhookURL,
			}
			return watch, []models.Notification{
				{ID: uuid.New(), WatchID: watchID, Tier: models.TierFifteenMinutes},
				{ID: uuid.New(), WatchID: watchID, Tier: models.TierFiveMinutes},
			}, nil
		},
	}
	srv := server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, sched, "")

	rec, body := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/watches",
		`{"owner":"owner-1","network":"mainnet","target_height":1000,"webhook_url":"https://hooks.example.com/w"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, watchID.String(), body["id"])
	require.Equal(t, []any{"15m", "5m"}, body["tiers"])
}

func TestCreateWatchValidation(t *testing.T) {
	sched := &cycleRunnerMock{
		SubscribeFunc: func(_ context.Context, _ scheduler.SubscribeRequest) (*models.BlockWatch, []models.Notification, error) {
			return nil, nil, scheduler.ErrNoDeliveryChannel
		},
	}
	srv := server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, sched, "")
	handler := srv.Handler()

	rec, _ := doRequest(t, handler, http.MethodPost, "/api/v1/watches", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, handler, http.MethodPost, "/api/v1/watches",
		`{"owner":"owner-1","network":"mainnet","target_height":0}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, handler, http.MethodPost, "/api/v1/watches",
		`{"network":"mainnet","target_height":1000}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doRequest(t, handler, http.MethodPost, "/api/v1/watches",
		`{"owner":"owner-1","network":"mainnet","target_height":1000}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, body["error"], "delivery channel")
}

func TestCreateWatchAlreadyReachedTarget(t *testing.T) {
	sched := &cycleRunnerMock{
		SubscribeFunc: func(_ context.Context, _ scheduler.SubscribeRequest) (*models.BlockWatch, []models.Notification, error) {
			return nil, nil, &models.AlreadyReachedError{CurrentHeight: 1200, TargetHeight: 1000}
		},
	}
	srv := server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, sched, "")

	rec, body := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/watches",
		`{"owner":"owner-1","network":"mainnet","target_height":1000,"webhook_url":"https://hooks.example.com/w"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "already_reached", body["kind"])
}

func TestDeleteWatch(t *testing.T) {
	existing := uuid.New()
	sched := &cycleRunnerMock{
		CancelFunc: func(_ context.Context, id uuid.UUID, owner string) error {
			if id != existing || owner != "owner-1" {
				return store.ErrNotFound
			}
			return nil
		},
	}
	srv := server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, sched, "")
	handler := srv.Handler()

	rec, _ := doRequest(t, handler, http.MethodDelete, "/api/v1/watches/"+existing.String()+"?owner=owner-1", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = doRequest(t, handler, http.MethodDelete, "/api/v1/watches/"+uuid.NewString()+"?owner=owner-1", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doRequest(t, handler, http.MethodDelete, "/api/v1/watches/not-a-uuid?owner=owner-1", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, handler, http.MethodDelete, "/api/v1/watches/"+existing.String(), "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunCycleTokenGate(t *testing.T) {
	sched := &cycleRunnerMock{
		RunCycleFunc: func(_ context.Context) ([]scheduler.ItemResult, error) {
			return []scheduler.ItemResult{{Status: scheduler.StatusSent}}, nil
		},
	}

	// No token configured: the endpoint is disabled outright.
	srv := server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, sched, "")
	rec, _ := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/cycle", "",
		map[string]string{"Authorization": "Bearer anything"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	srv = server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, sched, "s3cret")
	handler := srv.Handler()

	rec, _ = doRequest(t, handler, http.MethodPost, "/api/v1/cycle", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doRequest(t, handler, http.MethodPost, "/api/v1/cycle", "",
		map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := doRequest(t, handler, http.MethodPost, "/api/v1/cycle", "",
		map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["items"], 1)
}

func TestRunCycleBusyIsConflict(t *testing.T) {
	sched := &cycleRunnerMock{
		RunCycleFunc: func(_ context.Context) ([]scheduler.ItemResult, error) {
			return nil, scheduler.ErrCycleBusy
		},
	}
	srv := server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, sched, "s3cret")

	rec, _ := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/cycle", "",
		map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := server.New(newTestLogger(), &estimation_mock.EstimatorMock{}, &cycleRunnerMock{}, "")
	rec, body := doRequest(t, srv.Handler(), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
}
