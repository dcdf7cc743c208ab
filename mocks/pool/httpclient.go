// Package pool_mock provides a hand-rolled mock for the shared HTTP client.
package pool_mock

import (
	"net/http"
	"sync"

	"github.com/chainpulse/blockwatch/client/pool"
	"github.com/hashicorp/go-retryablehttp"
)

type HTTPClientMock struct {
	DoFunc func(req *retryablehttp.Request) (*http.Response, error)

	mu    sync.Mutex
	calls []*retryablehttp.Request
}

var _ pool.HTTPClient = &HTTPClientMock{}

func (m *HTTPClientMock) Do(req *retryablehttp.Request) (*http.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.DoFunc(req)
}

// DoCalls returns every request passed to Do, in order.
func (m *HTTPClientMock) DoCalls() []*retryablehttp.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*retryablehttp.Request, len(m.calls))
	copy(out, m.calls)
	return out
}
