package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultRetryBackoff = 500 * time.Millisecond

type retryClient struct {
	inner    Client
	attempts int
	backoff  time.Duration
}

// WithRetry wraps a client so transient service failures are retried a fixed
// number of times with doubling backoff. Context cancellation and deadline
// expiry are never retried. A backoff of 0 uses the default.
func WithRetry(inner Client, attempts int, backoff time.Duration) Client {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &retryClient{inner: inner, attempts: attempts, backoff: backoff}
}

func (c *retryClient) Generate(ctx context.Context, req Request) (Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.backoff<<(attempt-1)); err != nil {
				return Response{}, err
			}
		}

		resp, err := c.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Response{}, err
		}
		lastErr = err
	}

	return Response{}, fmt.Errorf("llm unavailable after %d attempts: %w", c.attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
