// Package pipeline sequences fetch → classify → prefilter → score →
// threshold → hand-off, isolating failures per source and per posting so one
// bad source or one bad posting cannot abort the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajolex/job-application-agent/internal/fetch"
	"github.com/ajolex/job-application-agent/internal/model"
	"github.com/ajolex/job-application-agent/internal/prefilter"
	"github.com/ajolex/job-application-agent/internal/score"
)

// Stage names used for error accounting in the run summary.
const (
	StageFetch     = "fetch"
	StageClassify  = "classify"
	StagePrefilter = "prefilter"
	StageScore     = "score"
	StageHandOff   = "handoff"
)

// Run terminal states.
const (
	StateCompleted           = "Completed"
	StateCompletedWithErrors = "CompletedWithErrors"
)

// Summary is returned to the caller after every run, even a partially failed
// one.
type Summary struct {
	Fetched        int
	SourcesFailed  int
	Skipped        int
	Changed        int
	Prefiltered    int
	Scored         int
	AboveThreshold int
	HandedOff      int
	Errors         map[string]int // stage name -> dropped item count
	State          string
}

func (s *Summary) recordError(stage string) {
	s.Errors[stage]++
}

// cleaner is implemented by stores that support retention cleanup.
type cleaner interface {
	Cleanup(olderThan time.Duration) error
}

// Options configure one run.
type Options struct {
	Keywords  []string
	Threshold float64       // inclusive lower bound on overall score
	Retention time.Duration // 0 disables post-run cleanup
	DryRun    bool          // no hand-off, no processed-record writes
}

// Orchestrator owns no persistent state; it coordinates the injected
// components and holds only in-memory run state.
type Orchestrator struct {
	adapters  []model.SourceAdapter
	executor  *fetch.Executor
	store     model.Store
	profiles  model.ProfileProvider
	prefilter *prefilter.Filter
	engine    *score.Engine
	generator model.Generator
	notifier  model.Notifier
	opts      Options
	logger    *slog.Logger
}

// New wires an orchestrator with all its dependencies.
func New(
	adapters []model.SourceAdapter,
	executor *fetch.Executor,
	st model.Store,
	profiles model.ProfileProvider,
	pf *prefilter.Filter,
	engine *score.Engine,
	gen model.Generator,
	n model.Notifier,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		adapters:  adapters,
		executor:  executor,
		store:     st,
		profiles:  profiles,
		prefilter: pf,
		engine:    engine,
		generator: gen,
		notifier:  n,
		opts:      opts,
		logger:    logger,
	}
}

// Run executes one full batch run. Per-item errors are recorded in the
// summary and never abort the run; only profile/store infrastructure
// failures return a non-nil error.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Errors: make(map[string]int), State: StateCompleted}

	profile, err := o.profiles.CurrentProfile()
	if err != nil {
		return summary, fmt.Errorf("loading profile: %w", err)
	}
	version := profile.Version
	if len(version) > 12 {
		version = version[:12]
	}
	o.logger.Info("profile loaded", "name", profile.Name, "version", version)

	// Fetching: all sources concurrently, failures isolated per source.
	batch := o.fetchAll(ctx, summary)

	// Classifying: partition against processing history.
	classification, err := o.classify(batch, summary)
	if err != nil {
		summary.State = StateCompletedWithErrors
		return summary, err
	}

	candidates := append(classification.New, classification.Changed...)
	summary.Skipped = len(classification.Skipped)
	summary.Changed = len(classification.Changed)

	// Prefiltering: cheap local rejection before any paid call.
	eligible := o.applyPrefilter(ctx, candidates, summary)

	// Scoring: bounded-concurrency external calls, cached by fingerprint.
	scored := o.engine.ScoreBatch(ctx, eligible, profile)

	// Thresholding and hand-off.
	o.finish(ctx, scored, profile, summary)

	if o.opts.Retention > 0 && !o.opts.DryRun {
		if c, ok := o.store.(cleaner); ok {
			if err := c.Cleanup(o.opts.Retention); err != nil {
				o.logger.Warn("retention cleanup failed", "error", err)
			}
		}
	}

	if len(summary.Errors) > 0 || summary.SourcesFailed > 0 {
		summary.State = StateCompletedWithErrors
	}

	o.logger.Info("run complete",
		"state", summary.State,
		"fetched", summary.Fetched,
		"skipped", summary.Skipped,
		"changed", summary.Changed,
		"prefiltered", summary.Prefiltered,
		"scored", summary.Scored,
		"above_threshold", summary.AboveThreshold,
		"handed_off", summary.HandedOff,
		"sources_failed", summary.SourcesFailed,
	)

	return summary, nil
}

func (o *Orchestrator) fetchAll(ctx context.Context, summary *Summary) []model.JobPosting {
	results := o.executor.FetchAll(ctx, o.adapters, o.opts.Keywords)

	// Sources overlap: the same posting can be listed on two boards. The
	// canonical URL is the identity, so the first occurrence wins and later
	// ones are dropped before classification.
	seen := make(map[string]bool)
	var batch []model.JobPosting
	for _, res := range results {
		if res.Err != nil {
			summary.SourcesFailed++
			summary.recordError(StageFetch)
		}
		for range res.PageErrs {
			summary.recordError(StageFetch)
		}
		for _, p := range res.Postings {
			if seen[p.URL] {
				continue
			}
			seen[p.URL] = true
			batch = append(batch, p)
		}
	}
	summary.Fetched = len(batch)
	return batch
}

func (o *Orchestrator) classify(batch []model.JobPosting, summary *Summary) (model.Classification, error) {
	// Catalog rows are written before classification so a changed posting's
	// re-fetch overwrite lands even if later stages drop it.
	kept := batch[:0]
	for _, p := range batch {
		if o.opts.DryRun {
			kept = append(kept, p)
			continue
		}
		if err := o.store.UpsertJob(p); err != nil {
			o.logger.Error("dropping posting, catalog write failed", "url", p.URL, "error", err)
			summary.recordError(StageClassify)
			continue
		}
		kept = append(kept, p)
	}

	classification, err := o.store.Classify(kept)
	if err != nil {
		return model.Classification{}, fmt.Errorf("classifying batch: %w", err)
	}
	return classification, nil
}

func (o *Orchestrator) applyPrefilter(ctx context.Context, candidates []model.JobPosting, summary *Summary) []model.JobPosting {
	var eligible []model.JobPosting
	for _, p := range candidates {
		ok, reason := o.prefilter.Check(p.Description)
		if ok {
			eligible = append(eligible, p)
			continue
		}
		summary.Prefiltered++
		o.logger.Info("prefiltered", "url", p.URL, "reason", reason)
		if err := o.markProcessed(ctx, p, model.DispositionPrefiltered); err != nil {
			summary.recordError(StagePrefilter)
		}
	}
	return eligible
}

// finish thresholds scored results in completion order, hands off survivors,
// and records terminal dispositions.
func (o *Orchestrator) finish(ctx context.Context, scored []score.Result, profile model.Profile, summary *Summary) {
	var above []model.Candidate
	for _, r := range scored {
		if r.Err != nil {
			// Not marked processed: retried on a future run, score cache
			// ensures no double payment for whatever succeeded.
			o.logger.Error("scoring failed", "url", r.Posting.URL, "error", r.Err)
			summary.recordError(StageScore)
			continue
		}
		summary.Scored++

		if r.Score.Overall >= o.opts.Threshold {
			above = append(above, model.Candidate{Posting: r.Posting, Score: r.Score})
			continue
		}

		if err := o.markProcessed(ctx, r.Posting, model.DispositionBelowThreshold); err != nil {
			summary.recordError(StageScore)
		}
	}
	summary.AboveThreshold = len(above)

	if len(above) == 0 {
		return
	}
	if o.opts.DryRun {
		o.logger.Info("dry run, skipping hand-off", "candidates", len(above))
		return
	}

	for _, c := range above {
		if ctx.Err() != nil {
			return
		}
		path, err := o.generator.Generate(ctx, c, profile)
		if err != nil {
			// The candidate stays unprocessed; its cached score makes the
			// retry next run free.
			o.logger.Error("hand-off failed", "url", c.Posting.URL, "error", err)
			summary.recordError(StageHandOff)
			continue
		}
		if err := o.markProcessed(ctx, c.Posting, model.DispositionMatched); err != nil {
			summary.recordError(StageHandOff)
			continue
		}
		summary.HandedOff++
		o.logger.Info("handed off", "url", c.Posting.URL, "score", c.Score.Overall, "cover_letter", path)
	}

	if err := o.notifier.Notify(above); err != nil {
		o.logger.Error("notification failed", "error", err)
		summary.recordError(StageHandOff)
	}
}

// markProcessed finalizes a disposition unless the run has been cancelled;
// after cancellation no new dispositions may be recorded.
func (o *Orchestrator) markProcessed(ctx context.Context, p model.JobPosting, disposition string) error {
	if o.opts.DryRun {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.MarkProcessed(p.URL, model.Fingerprint(p), disposition); err != nil {
		o.logger.Error("recording disposition failed", "url", p.URL, "disposition", disposition, "error", err)
		return err
	}
	return nil
}
