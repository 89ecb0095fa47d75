package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ajolex/job-application-agent/internal/model"
)

// Policy controls exponential backoff. The same policy is shared by the
// fetch executor and the scoring engine so both external surfaces behave
// identically under transient failure.
type Policy struct {
	MaxRetries int           // additional attempts after the first failure
	BaseDelay  time.Duration // delay before the first retry, doubled each retry
	MaxDelay   time.Duration // cap on the computed delay, 0 = uncapped
}

// DefaultPolicy matches the documented discipline: up to 3 attempts total,
// exponential backoff from 2s capped at 30s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// Do runs fn, retrying transient failures with exponential backoff and
// jitter. Non-retryable errors and context cancellation return immediately.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	if !IsRetryable(err) {
		return result, err
	}

	lastErr := err
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		delay := p.backoffDelay(attempt, lastErr)

		logger.Warn("retrying after transient error",
			"op", op,
			"attempt", attempt,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: retry cancelled: %w", op, ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}

		if !IsRetryable(err) {
			return result, err
		}
		lastErr = err
	}

	var zero T
	return zero, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes
// precedence over the exponential schedule.
func (p Policy) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	// Apply ±30% jitter
	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	return delay
}

// IsRetryable returns true if the error represents a transient failure worth
// retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Never retry a cancelled context.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// A source declared unavailable is skipped, not retried page by page.
	var unavailable *model.UnavailableError
	if errors.As(err, &unavailable) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 Too Many Requests is retryable.
		if httpErr.StatusCode == 429 {
			return true
		}
		// 5xx is retryable.
		if httpErr.StatusCode >= 500 {
			return true
		}
		// Other 4xx are not retryable.
		return false
	}

	// Non-HTTP errors (network, DNS, etc.) are retryable.
	return true
}
