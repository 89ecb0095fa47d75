// Package fetch runs source adapters with uniform pacing, retry, and
// pagination discipline so individual adapters stay simple.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ajolex/job-application-agent/internal/model"
	"github.com/ajolex/job-application-agent/internal/ratelimit"
	"github.com/ajolex/job-application-agent/internal/retry"
)

// SourceResult is everything one source produced during a run.
type SourceResult struct {
	Source   string
	Postings []model.JobPosting // page-then-position order, unique by URL within the run
	Err      error              // non-nil if the source was unavailable
	PageErrs []error            // pages abandoned after retry exhaustion
}

// Executor wraps adapters with per-source pacing, retry-with-backoff, and
// page-iteration termination. It holds no persistent state; raw results are
// handed to the caller.
type Executor struct {
	limiter *ratelimit.SourceRateLimiter
	policy  retry.Policy
	logger  *slog.Logger
}

// NewExecutor creates an executor. All adapters share the one limiter so
// per-source timers survive across keywords and retries.
func NewExecutor(limiter *ratelimit.SourceRateLimiter, policy retry.Policy, logger *slog.Logger) *Executor {
	return &Executor{
		limiter: limiter,
		policy:  policy,
		logger:  logger,
	}
}

// FetchAll fetches from all adapters concurrently, one worker per source.
// Within a source, page requests are strictly sequential. A failed source
// never affects the others; its failure is recorded in its SourceResult.
func (e *Executor) FetchAll(ctx context.Context, adapters []model.SourceAdapter, keywords []string) []SourceResult {
	results := make([]SourceResult, len(adapters))

	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = e.fetchSource(ctx, a, keywords)
			return nil
		})
	}
	g.Wait()

	return results
}

// fetchSource pages through one source until it yields no new postings,
// signals no more results, or hits the adapter's page ceiling.
func (e *Executor) fetchSource(ctx context.Context, a model.SourceAdapter, keywords []string) SourceResult {
	res := SourceResult{Source: a.Name()}
	seen := make(map[string]bool)

	for page := 1; page <= a.MaxPages(); page++ {
		pg, err := retry.Do(ctx, e.policy, e.logger, a.Name(), func(ctx context.Context) (*model.Page, error) {
			if err := e.limiter.Wait(ctx, a.Name(), a.MinDelay()); err != nil {
				return nil, err
			}
			return a.FetchPage(ctx, keywords, page)
		})
		if err != nil {
			var unavailable *model.UnavailableError
			if errors.As(err, &unavailable) || page == 1 {
				// Source cannot be reached at all: skip it for this run.
				if !errors.As(err, &unavailable) {
					err = &model.UnavailableError{Source: a.Name(), Err: err}
				}
				res.Err = err
				e.logger.Error("source unavailable", "source", a.Name(), "error", err)
				return res
			}
			// Abandon this page, keep what earlier pages produced.
			res.PageErrs = append(res.PageErrs, fmt.Errorf("page %d: %w", page, err))
			e.logger.Warn("abandoning page after retries", "source", a.Name(), "page", page, "error", err)
			break
		}

		newCount := 0
		for _, p := range pg.Postings {
			if seen[p.URL] {
				continue
			}
			seen[p.URL] = true
			res.Postings = append(res.Postings, p)
			newCount++
		}

		e.logger.Debug("fetched page",
			"source", a.Name(),
			"page", page,
			"listings", len(pg.Postings),
			"new", newCount,
		)

		// A page with zero new listings means the source is repeating
		// itself; stop before maxPages.
		if newCount == 0 || !pg.HasMore {
			break
		}
	}

	return res
}
