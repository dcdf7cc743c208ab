package delivery_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chainpulse/blockwatch/delivery"
	"github.com/chainpulse/blockwatch/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func watchWithWebhook(url string) *models.BlockWatch {
	return &models.BlockWatch{
		ID:           uuid.New(),
		Owner:        "owner-1",
		Network:      models.NetworkMainnet,
		TargetHeight: 1000,
		WebhookURL:   &url,
	}
}

func TestSendPostsJSONPayload(t *testing.T) {
	var received delivery.Message
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := delivery.NewWebhookSender(newTestLogger(), time.Second)
	watch := watchWithWebhook(srv.URL)
	msg := delivery.Message{
		Kind:            delivery.KindProgress,
		WatchID:         watch.ID,
		Tier:            models.TierOneHour,
		Network:         watch.Network,
		TargetHeight:    1000,
		CurrentHeight:   400,
		BlocksRemaining: 600,
		EstimatedAt:     time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, sender.Send(context.Background(), watch, msg))

	require.Equal(t, "application/json", contentType)
	require.Equal(t, delivery.KindProgress, received.Kind)
	require.Equal(t, watch.ID, received.WatchID)
	require.Equal(t, models.TierOneHour, received.Tier)
	require.Equal(t, int64(600), received.BlocksRemaining)
}

func TestSendNon2xxIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := delivery.NewWebhookSender(newTestLogger(), time.Second)
	err := sender.Send(context.Background(), watchWithWebhook(srv.URL), delivery.Message{Kind: delivery.KindReached})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestSendWithoutWebhookIsANoop(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		requests++
	}))
	defer srv.Close()

	sender := delivery.NewWebhookSender(newTestLogger(), time.Second)
	watch := &models.BlockWatch{ID: uuid.New(), Network: models.NetworkMainnet}
	require.NoError(t, sender.Send(context.Background(), watch, delivery.Message{Kind: delivery.KindProgress}))
	require.Zero(t, requests)
}

func TestCalendarLinksEncodeEstimate(t *testing.T) {
	estimatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	links := delivery.CalendarLinksFor("Upgrade v12", models.NetworkMainnet, 1000, estimatedAt)
	require.Len(t, links, 1)
	require.Equal(t, "google", links[0].Provider)
	require.Contains(t, links[0].URL, "20260301T120000Z%2F20260301T121000Z")
	require.Contains(t, links[0].URL, "Upgrade+v12")
}

func TestCalendarLinksDefaultTitle(t *testing.T) {
	links := delivery.CalendarLinksFor("", models.NetworkTestnet, 777, time.Now())
	require.Contains(t, links[0].URL, "Block+777+on+testnet")
}
