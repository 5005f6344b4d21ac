package evm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pauliax/token-spender-allowances/internal/clock"
)

// execute runs fn with pacing, retries and failover. fn receives a backend
// for the currently active endpoint and a context bounded by the per-attempt
// timeout. Transport failures are reported to the pool and retried, resuming
// on the next endpoint once the pool fails over. Throttling responses are
// retried without a pool report. Data errors return immediately, repeating
// the call would fail the same way. The backoff restarts from the base delay
// whenever the active endpoint changes.
func (c *Client) execute(ctx context.Context, operation string, fn func(ctx context.Context, b Backend) error) error {
	budget := c.maxRetries * c.pool.Size()
	attempt := 0
	activeURL := ""
	var lastErr error

	for used := 0; used < budget; used++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		url, err := c.pool.Current()
		if err != nil {
			return c.failure(operation, used, lastErr, err)
		}
		if url != activeURL {
			if activeURL != "" {
				c.logger.Warn("failing over to next rpc endpoint",
					zap.String("operation", operation),
					zap.String("endpoint", url))
			}
			activeURL = url
			attempt = 0
		}
		attempt++

		if attempt > 1 {
			if err := c.sleep(ctx, clock.Backoff(c.retryDelay, attempt-1, maxBackoffDelay)); err != nil {
				return err
			}
		}
		c.limiter.Take()

		started := time.Now()
		backend, err := c.backend(ctx, url)
		if err == nil {
			attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
			err = fn(attemptCtx, backend)
			cancel()
		}
		c.metrics.Observe(operation, url, err, started)

		if err == nil {
			c.pool.ReportSuccess(url)
			return nil
		}
		lastErr = err

		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		switch Classify(err) {
		case ClassData:
			return fmt.Errorf("%s: %w", operation, err)
		case ClassRateLimit:
			c.logger.Warn("rpc endpoint throttling, retrying",
				zap.String("operation", operation),
				zap.String("endpoint", url),
				zap.Error(err))
		default:
			c.logger.Warn("rpc transport failure",
				zap.String("operation", operation),
				zap.String("endpoint", url),
				zap.Error(err))
			c.pool.ReportFailure(url)
		}
	}

	return c.failure(operation, budget, lastErr, nil)
}

// failure wraps the terminal error of an operation. poolErr is set when the
// pool ran out of alive endpoints, otherwise the retry budget is spent.
func (c *Client) failure(operation string, attempts int, lastErr, poolErr error) error {
	switch {
	case poolErr != nil && lastErr != nil:
		return fmt.Errorf("%s: %w after %d attempts, last error: %v", operation, poolErr, attempts, lastErr)
	case poolErr != nil:
		return fmt.Errorf("%s: %w", operation, poolErr)
	default:
		return fmt.Errorf("%s: retry budget spent after %d attempts: %w", operation, attempts, lastErr)
	}
}
