package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
)

// retryable reports whether err is a transient Graph API answer (429 or 5xx).
// Transport errors are not retried: the API may already have accepted the
// message, and a retry would deliver it twice.
func retryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500)
}

// withRetry runs fn with quadratic backoff plus jitter while it fails with a
// retryable error.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * c.retryBackoff
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			backoff := base + jitter
			c.logger.Warn("retrying graph request", "op", op, "attempt", attempt+1, "backoff", backoff, "err", err)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, c.maxRetries, err)
}
