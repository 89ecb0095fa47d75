package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SourceRateLimiter enforces a minimum delay between consecutive requests to
// the same source. Each source has its own timer; sources never delay each
// other. The delay is supplied per call because each adapter declares its
// own pacing requirement.
type SourceRateLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time // key: source name
}

// NewSourceRateLimiter creates a rate limiter with no history; the first
// request for each source proceeds immediately.
func NewSourceRateLimiter() *SourceRateLimiter {
	return &SourceRateLimiter{
		lastCall: make(map[string]time.Time),
	}
}

// Wait blocks until at least minDelay has passed since the last request to
// the given source. Returns an error if the context is cancelled while
// waiting.
func (r *SourceRateLimiter) Wait(ctx context.Context, source string, minDelay time.Duration) error {
	r.mu.Lock()
	last, ok := r.lastCall[source]
	now := time.Now()

	if !ok {
		// First request for this source — no wait needed.
		r.lastCall[source] = now
		r.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= minDelay {
		// Enough time has passed — proceed immediately.
		r.lastCall[source] = now
		r.mu.Unlock()
		return nil
	}

	// Need to wait for the remainder.
	remaining := minDelay - elapsed
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", source, ctx.Err())
	case <-time.After(remaining):
	}

	// Record the actual time after waiting.
	r.mu.Lock()
	r.lastCall[source] = time.Now()
	r.mu.Unlock()

	return nil
}
