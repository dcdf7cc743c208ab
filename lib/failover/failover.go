// Package failover resolves an operation against an ordered endpoint list.
// The list order is a priority, not a pool: endpoints are tried strictly in
// sequence, each at most once, with no concurrency between attempts.
package failover

import (
	"context"
	"fmt"
	"strings"
)

// Attempt records one failed endpoint try, in the order it was made.
type Attempt struct {
	URL string
	Err error
}

// ExhaustedError is returned when every endpoint in the list failed. It
// embeds every underlying failure so callers can see the full fallback trail.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("all %d endpoints failed:", len(e.Attempts)))
	for _, a := range e.Attempts {
		b.WriteString(fmt.Sprintf(" [%s: %s]", a.URL, a.Err))
	}
	return b.String()
}

// TryInOrder runs op against each URL in order until one succeeds, returning
// the result and the endpoint that produced it. A failed attempt is never
// retried on the same URL. If every URL fails, the zero value is returned
// together with an *ExhaustedError aggregating each failure.
func TryInOrder[T any](ctx context.Context, urls []string, op func(ctx context.Context, url string) (T, error)) (T, string, error) {
	var zero T
	if len(urls) == 0 {
		return zero, "", &ExhaustedError{}
	}

	attempts := make([]Attempt, 0, len(urls))
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		result, err := op(ctx, url)
		if err == nil {
			return result, url, nil
		}
		attempts = append(attempts, Attempt{URL: url, Err: err})
	}
	return zero, "", &ExhaustedError{Attempts: attempts}
}
