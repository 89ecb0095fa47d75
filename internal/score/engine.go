// Package score produces a MatchScore for every posting surviving the
// pre-filter, exactly once per (profile version, content fingerprint).
package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/ajolex/job-application-agent/internal/model"
	"github.com/ajolex/job-application-agent/internal/retry"
)

// descriptionLimit bounds how much description text goes into one prompt.
const descriptionLimit = 3000

// truncateDescription cuts the text to descriptionLimit bytes without
// splitting a multi-byte rune at the cut point.
func truncateDescription(s string) string {
	if len(s) <= descriptionLimit {
		return s
	}
	cut := descriptionLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Result is the scoring outcome for one posting. Err set means
// scoring-failed: the posting is excluded from this run's candidates and not
// marked processed, so it is retried on a future run.
type Result struct {
	Posting model.JobPosting
	Score   model.MatchScore
	Cached  bool
	Err     error
}

// Engine scores postings against a profile through an LLM provider, caching
// every valid score in the store by (profile version, fingerprint).
type Engine struct {
	provider    Provider
	store       model.Store
	policy      retry.Policy
	concurrency int
	logger      *slog.Logger
}

// NewEngine creates a scoring engine. concurrency is a fixed bound on
// simultaneous provider calls; it is configuration, never derived from batch
// size.
func NewEngine(provider Provider, store model.Store, policy retry.Policy, concurrency int, logger *slog.Logger) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		provider:    provider,
		store:       store,
		policy:      policy,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ScoreBatch scores all postings concurrently up to the configured bound.
// Results are appended in completion order, not submission order.
func (e *Engine) ScoreBatch(ctx context.Context, postings []model.JobPosting, profile model.Profile) []Result {
	results := make([]Result, 0, len(postings))
	var resultsMu sync.Mutex

	// Postings sharing a fingerprint are scored once; the rest wait for the
	// cache write. Group them up front so duplicate work never starts.
	byFingerprint := make(map[string][]model.JobPosting)
	order := make([]string, 0, len(postings))
	for _, p := range postings {
		fp := model.Fingerprint(p)
		if _, ok := byFingerprint[fp]; !ok {
			order = append(order, fp)
		}
		byFingerprint[fp] = append(byFingerprint[fp], p)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, fp := range order {
		group := byFingerprint[fp]
		g.Go(func() error {
			score, cached, err := e.scoreOne(ctx, group[0], fp, profile)

			resultsMu.Lock()
			defer resultsMu.Unlock()
			for i, p := range group {
				r := Result{Posting: p, Err: err}
				if err == nil {
					r.Score = *score
					// Only the first posting in the group triggered a call.
					r.Cached = cached || i > 0
				}
				results = append(results, r)
			}
			return nil
		})
	}
	g.Wait()

	return results
}

// scoreOne resolves one fingerprint: cache hit, or one provider call retried
// per the shared backoff policy. A malformed response is retried once, then
// treated as scoring-failed.
func (e *Engine) scoreOne(ctx context.Context, p model.JobPosting, fp string, profile model.Profile) (*model.MatchScore, bool, error) {
	cached, err := e.store.CachedScore(profile.Version, fp)
	if err != nil {
		return nil, false, fmt.Errorf("score cache lookup for %s: %w", p.URL, err)
	}
	if cached != nil {
		e.logger.Debug("score cache hit", "url", p.URL, "overall", cached.Overall)
		return cached, true, nil
	}

	prompt, err := e.buildPrompt(p, profile)
	if err != nil {
		return nil, false, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := retry.Do(ctx, e.policy, e.logger, "score "+p.URL, func(ctx context.Context) (string, error) {
			return e.provider.Complete(ctx, prompt)
		})
		if err != nil {
			return nil, false, fmt.Errorf("scoring %s: %w", p.URL, err)
		}

		score, err := parseScore(raw)
		if err == nil {
			err = score.Validate()
		}
		if err != nil {
			lastErr = err
			e.logger.Warn("malformed score response", "url", p.URL, "attempt", attempt+1, "error", err)
			continue
		}

		if err := e.store.SaveScore(profile.Version, fp, *score); err != nil {
			// An uncached score would be re-paid on the next run; treat it
			// as a scoring failure so the posting stays unprocessed.
			return nil, false, fmt.Errorf("caching score for %s: %w", p.URL, err)
		}

		return score, false, nil
	}

	return nil, false, fmt.Errorf("scoring %s: malformed response after retry: %w", p.URL, lastErr)
}

func (e *Engine) buildPrompt(p model.JobPosting, profile model.Profile) (string, error) {
	description := truncateDescription(p.Description)

	var buf bytes.Buffer
	err := MatchScoringTemplate.Execute(&buf, struct {
		Profile     model.Profile
		Posting     model.JobPosting
		Skills      string
		Interests   string
		Description string
	}{
		Profile:     profile,
		Posting:     p,
		Skills:      strings.Join(profile.Skills, ", "),
		Interests:   strings.Join(profile.ResearchInterests, ", "),
		Description: description,
	})
	if err != nil {
		return "", fmt.Errorf("render scoring prompt: %w", err)
	}
	return buf.String(), nil
}

// rawScore is the JSON shape returned by the provider (matches
// matchScoreSchema).
type rawScore struct {
	OverallScore       *float64 `json:"overall_score"`
	SkillsMatch        *float64 `json:"skills_match"`
	ExperienceMatch    *float64 `json:"experience_match"`
	DomainMatch        *float64 `json:"domain_match"`
	QualificationMatch *float64 `json:"qualification_match"`
	Reasoning          string   `json:"reasoning"`
	Highlights         []string `json:"highlights"`
	Concerns           []string `json:"concerns"`
}

// parseScore deserializes the provider response. A missing sub-score is a
// malformed response, not a zero.
func parseScore(raw string) (*model.MatchScore, error) {
	var rs rawScore
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return nil, fmt.Errorf("unmarshal score JSON: %w", err)
	}

	for name, v := range map[string]*float64{
		"overall_score":       rs.OverallScore,
		"skills_match":        rs.SkillsMatch,
		"experience_match":    rs.ExperienceMatch,
		"domain_match":        rs.DomainMatch,
		"qualification_match": rs.QualificationMatch,
	} {
		if v == nil {
			return nil, fmt.Errorf("response missing %s", name)
		}
	}

	return &model.MatchScore{
		Overall:        *rs.OverallScore,
		Skills:         *rs.SkillsMatch,
		Experience:     *rs.ExperienceMatch,
		Domain:         *rs.DomainMatch,
		Qualifications: *rs.QualificationMatch,
		Reasoning:      rs.Reasoning,
		Highlights:     rs.Highlights,
		Concerns:       rs.Concerns,
	}, nil
}
