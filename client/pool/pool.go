// Package pool holds the HTTP client construction and the bounded worker
// pool shared by every source adapter, so the total number of in-flight
// RPC requests is capped process-wide.
package pool

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/panjf2000/ants/v2"
)

type HTTPClient interface {
	Do(req *retryablehttp.Request) (*http.Response, error)
}

const DefaultRequestTimeout = 10 * time.Second

// NewHTTPClient builds the client used for source RPC calls. RetryMax is 0:
// recovery from a failing endpoint is trying the next URL in the configured
// fallback order, never re-hitting the same one.
func NewHTTPClient(log *slog.Logger, timeout time.Duration) *retryablehttp.Client {
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = log
	client.HTTPClient.Timeout = timeout
	return client
}

// WorkerPool wraps an ants pool behind a blocking Execute.
type WorkerPool struct {
	pool *ants.Pool
}

func NewWorkerPool(size int) (*WorkerPool, error) {
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &WorkerPool{pool: p}, nil
}

// Execute runs task on the pool and blocks until it finishes, returning its
// error. If the pool rejects the submission the submission error is returned.
func (w *WorkerPool) Execute(task func() error) error {
	errCh := make(chan error, 1)
	if err := w.pool.Submit(func() {
		errCh <- task()
	}); err != nil {
		return err
	}
	return <-errCh
}

func (w *WorkerPool) Release() {
	w.pool.Release()
}
