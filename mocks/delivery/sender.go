// Package delivery_mock provides a hand-rolled mock for the delivery sender.
package delivery_mock

import (
	"context"
	"sync"

	"github.com/chainpulse/blockwatch/delivery"
	"github.com/chainpulse/blockwatch/models"
)

type SenderMock struct {
	SendFunc func(ctx context.Context, watch *models.BlockWatch, msg delivery.Message) error

	mu    sync.Mutex
	calls []delivery.Message
}

var _ delivery.Sender = &SenderMock{}

func (m *SenderMock) Send(ctx context.Context, watch *models.BlockWatch, msg delivery.Message) error {
	m.mu.Lock()
	m.calls = append(m.calls, msg)
	m.mu.Unlock()
	if m.SendFunc == nil {
		return nil
	}
	return m.SendFunc(ctx, watch, msg)
}

// SendCalls returns every message passed to Send, in order.
func (m *SenderMock) SendCalls() []delivery.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]delivery.Message, len(m.calls))
	copy(out, m.calls)
	return out
}
