// Package delivery dispatches structured watch notifications to the
// configured outbound channel. Delivery is best effort: a failure is
// surfaced to the caller and never retried here.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/chainpulse/blockwatch/models"
	"github.com/go-errors/errors"
	"github.com/hashicorp/go-retryablehttp"
)

// Sender delivers one message for one watch.
type Sender interface {
	Send(ctx context.Context, watch *models.BlockWatch, msg Message) error
}

const DefaultSendTimeout = 10 * time.Second

// WebhookSender posts messages as JSON to the watch's webhook URL. Watches
// without a webhook are a no-op at this layer: email-only watches are handled
// by an external relay.
type WebhookSender struct {
	log        *slog.Logger
	httpClient *retryablehttp.Client
}

var _ Sender = &WebhookSender{}

func NewWebhookSender(log *slog.Logger, timeout time.Duration) *WebhookSender {
	if timeout == 0 {
		timeout = DefaultSendTimeout
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = log
	client.HTTPClient.Timeout = timeout
	return &WebhookSender{
		log:        log.With("module", "delivery"),
		httpClient: client,
	}
}

func (s *WebhookSender) Send(ctx context.Context, watch *models.BlockWatch, msg Message) error {
	if watch.WebhookURL == nil || *watch.WebhookURL == "" {
		s.log.Debug("No webhook configured, skipping dispatch", "watchID", watch.ID)
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Errorf("marshal webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, *watch.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook returned status %d", resp.StatusCode)
	}
	s.log.Debug("Dispatched notification",
		"watchID", watch.ID,
		"kind", msg.Kind,
		"tier", msg.Tier,
		"duration", time.Since(start),
	)
	return nil
}

// NoopSender does nothing. Used when outbound delivery is disabled.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, _ *models.BlockWatch, _ Message) error { return nil }
