package driver

import (
	"context"
	"time"
)

const defaultRetryBackoff = 100 * time.Millisecond

// withRetry runs fn up to maxRetries+1 times, doubling the wait after each
// failure. Waits abort on context cancellation; fn handles its own
// timeouts.
func withRetry(ctx context.Context, maxRetries int, backoff time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}

		timer := time.NewTimer(backoff << attempt)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
