package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ajolex/job-application-agent/internal/fetch"
	"github.com/ajolex/job-application-agent/internal/model"
	"github.com/ajolex/job-application-agent/internal/prefilter"
	"github.com/ajolex/job-application-agent/internal/ratelimit"
	"github.com/ajolex/job-application-agent/internal/retry"
	"github.com/ajolex/job-application-agent/internal/score"
)

// --- Mock/Fake Implementations ---

// fakeAdapter serves one canned page per run.
type fakeAdapter struct {
	name     string
	postings []model.JobPosting
	err      error
}

func (a *fakeAdapter) Name() string            { return a.name }
func (a *fakeAdapter) MinDelay() time.Duration { return 0 }
func (a *fakeAdapter) MaxPages() int           { return 1 }

func (a *fakeAdapter) FetchPage(context.Context, []string, int) (*model.Page, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &model.Page{Postings: a.postings}, nil
}

// memStore is a map-backed model.Store.
type memStore struct {
	mu        sync.Mutex
	jobs      map[string]model.JobPosting
	processed map[string]model.ProcessedRecord
	scores    map[string]model.MatchScore
}

func newMemStore() *memStore {
	return &memStore{
		jobs:      make(map[string]model.JobPosting),
		processed: make(map[string]model.ProcessedRecord),
		scores:    make(map[string]model.MatchScore),
	}
}

func (s *memStore) UpsertJob(p model.JobPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[p.URL] = p
	return nil
}

func (s *memStore) Classify(postings []model.JobPosting) (model.Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c model.Classification
	for _, p := range postings {
		rec, ok := s.processed[p.URL]
		switch {
		case !ok:
			c.New = append(c.New, p)
		case rec.Fingerprint == model.Fingerprint(p):
			c.Skipped = append(c.Skipped, p)
		default:
			c.Changed = append(c.Changed, p)
		}
	}
	return c, nil
}

func (s *memStore) MarkProcessed(url, fingerprint, disposition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[url] = model.ProcessedRecord{
		URL: url, Fingerprint: fingerprint, Disposition: disposition, ProcessedAt: time.Now(),
	}
	return nil
}

func (s *memStore) Processed(url string) (*model.ProcessedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.processed[url]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (s *memStore) CachedScore(profileVersion, fingerprint string) (*model.MatchScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scores[profileVersion+"/"+fingerprint]; ok {
		return &sc, nil
	}
	return nil, nil
}

func (s *memStore) SaveScore(profileVersion, fingerprint string, sc model.MatchScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[profileVersion+"/"+fingerprint] = sc
	return nil
}

func (s *memStore) disposition(url string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[url].Disposition
}

// countingProvider always returns the same response, counting calls. onCall,
// if set, runs before the response is produced.
type countingProvider struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	onCall   func()
}

func (p *countingProvider) Complete(ctx context.Context, _ string) (string, error) {
	p.mu.Lock()
	p.calls++
	onCall := p.onCall
	p.mu.Unlock()
	if onCall != nil {
		onCall()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.response, p.err
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// recordingGenerator records hand-offs. onGenerate, if set, runs before the
// result is produced.
type recordingGenerator struct {
	generated  []string
	err        error
	onGenerate func()
}

func (g *recordingGenerator) Generate(_ context.Context, c model.Candidate, _ model.Profile) (string, error) {
	if g.onGenerate != nil {
		g.onGenerate()
	}
	if g.err != nil {
		return "", g.err
	}
	g.generated = append(g.generated, c.Posting.URL)
	return "/tmp/letter.txt", nil
}

// recordingNotifier records each Notify batch.
type recordingNotifier struct {
	batches [][]model.Candidate
}

func (n *recordingNotifier) Notify(candidates []model.Candidate) error {
	n.batches = append(n.batches, candidates)
	return nil
}

type staticProfiles struct{ p model.Profile }

func (s staticProfiles) CurrentProfile() (model.Profile, error) { return s.p, nil }

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

// scoreOverall is the overall value every countingProvider response carries.
var scoreOverall = model.MatchScore{
	Skills: 80, Experience: 70, Domain: 60, Qualifications: 90,
}.WeightedOverall()

func providerResponse() string {
	raw, _ := json.Marshal(map[string]any{
		"overall_score":       scoreOverall,
		"skills_match":        80.0,
		"experience_match":    70.0,
		"domain_match":        60.0,
		"qualification_match": 90.0,
		"reasoning":           "good overlap",
		"highlights":          []string{"skills"},
		"concerns":            []string{},
	})
	return string(raw)
}

func makePosting(url, description string) model.JobPosting {
	return model.JobPosting{
		URL:          url,
		Title:        "Programme Officer",
		Organization: "UNDP",
		Location:     "Nairobi",
		Description:  description,
		Source:       "test",
		FetchedAt:    time.Now(),
	}
}

type fixture struct {
	store     *memStore
	provider  *countingProvider
	generator *recordingGenerator
	notifier  *recordingNotifier
	orch      *Orchestrator
}

func newFixture(adapters []model.SourceAdapter, opts Options) *fixture {
	f := &fixture{
		store:     newMemStore(),
		provider:  &countingProvider{response: providerResponse()},
		generator: &recordingGenerator{},
		notifier:  &recordingNotifier{},
	}
	logger := discardLogger()
	f.orch = New(
		adapters,
		fetch.NewExecutor(ratelimit.NewSourceRateLimiter(), fastPolicy(), logger),
		f.store,
		staticProfiles{model.Profile{Name: "Test Candidate", Version: "v1"}},
		prefilter.New(nil),
		score.NewEngine(f.provider, f.store, fastPolicy(), 2, logger),
		f.generator,
		f.notifier,
		opts,
		logger,
	)
	return f
}

// --- Tests ---

func TestRun_FullFlow(t *testing.T) {
	clean := makePosting("https://example.org/jobs/1", "Climate policy role, sponsorship available.")
	restricted := makePosting("https://example.org/jobs/2", "Must be a US citizen.")
	adapters := []model.SourceAdapter{&fakeAdapter{name: "test", postings: []model.JobPosting{clean, restricted}}}

	f := newFixture(adapters, Options{Threshold: scoreOverall - 10})

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Fetched != 2 {
		t.Errorf("Fetched = %d, want 2", summary.Fetched)
	}
	if summary.Prefiltered != 1 {
		t.Errorf("Prefiltered = %d, want 1", summary.Prefiltered)
	}
	if summary.Scored != 1 {
		t.Errorf("Scored = %d, want 1", summary.Scored)
	}
	if summary.HandedOff != 1 {
		t.Errorf("HandedOff = %d, want 1", summary.HandedOff)
	}
	if summary.State != StateCompleted {
		t.Errorf("State = %s, want %s", summary.State, StateCompleted)
	}

	if got := f.store.disposition(clean.URL); got != model.DispositionMatched {
		t.Errorf("clean disposition = %q, want matched", got)
	}
	if got := f.store.disposition(restricted.URL); got != model.DispositionPrefiltered {
		t.Errorf("restricted disposition = %q, want prefiltered", got)
	}

	if len(f.notifier.batches) != 1 || len(f.notifier.batches[0]) != 1 {
		t.Errorf("notifier batches = %+v, want one batch with one candidate", f.notifier.batches)
	}
	if len(f.generator.generated) != 1 || f.generator.generated[0] != clean.URL {
		t.Errorf("generated = %v, want [%s]", f.generator.generated, clean.URL)
	}
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	p := makePosting("https://example.org/jobs/1", "Great role.")
	adapters := []model.SourceAdapter{&fakeAdapter{name: "test", postings: []model.JobPosting{p}}}

	f := newFixture(adapters, Options{Threshold: scoreOverall - 10})

	if _, err := f.orch.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := f.provider.callCount()

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", summary.Skipped)
	}
	if summary.HandedOff != 0 {
		t.Errorf("HandedOff = %d, want 0 on second run", summary.HandedOff)
	}
	if f.provider.callCount() != callsAfterFirst {
		t.Errorf("provider calls grew from %d to %d on an unchanged batch",
			callsAfterFirst, f.provider.callCount())
	}
	if len(f.notifier.batches) != 1 {
		t.Errorf("notifier batches = %d, want 1 (no re-notification)", len(f.notifier.batches))
	}
}

func TestRun_ChangedContentRescored(t *testing.T) {
	p := makePosting("https://example.org/jobs/1", "Original description.")
	adapter := &fakeAdapter{name: "test", postings: []model.JobPosting{p}}

	f := newFixture([]model.SourceAdapter{adapter}, Options{Threshold: scoreOverall - 10})

	if _, err := f.orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := f.provider.callCount()

	changed := p
	changed.Description = "Substantially revised description."
	adapter.postings = []model.JobPosting{changed}

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Changed != 1 {
		t.Errorf("Changed = %d, want 1", summary.Changed)
	}
	if f.provider.callCount() != callsAfterFirst+1 {
		t.Errorf("provider calls = %d, want %d (changed content pays one new call)",
			f.provider.callCount(), callsAfterFirst+1)
	}
}

func TestRun_ThresholdIsInclusive(t *testing.T) {
	p := makePosting("https://example.org/jobs/1", "Role.")
	adapters := []model.SourceAdapter{&fakeAdapter{name: "test", postings: []model.JobPosting{p}}}

	// A score exactly at the threshold is a match.
	f := newFixture(adapters, Options{Threshold: scoreOverall})

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.AboveThreshold != 1 || summary.HandedOff != 1 {
		t.Errorf("score == threshold must match: %+v", summary)
	}
}

func TestRun_BelowThresholdNotHandedOff(t *testing.T) {
	p := makePosting("https://example.org/jobs/1", "Role.")
	adapters := []model.SourceAdapter{&fakeAdapter{name: "test", postings: []model.JobPosting{p}}}

	f := newFixture(adapters, Options{Threshold: scoreOverall + 0.1})

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.AboveThreshold != 0 || summary.HandedOff != 0 {
		t.Errorf("score below threshold must not match: %+v", summary)
	}
	if got := f.store.disposition(p.URL); got != model.DispositionBelowThreshold {
		t.Errorf("disposition = %q, want below-threshold", got)
	}
	if len(f.notifier.batches) != 0 {
		t.Error("notifier should not fire with no candidates")
	}
}

func TestRun_DryRunScoresButDoesNotCommit(t *testing.T) {
	p := makePosting("https://example.org/jobs/1", "Role.")
	adapters := []model.SourceAdapter{&fakeAdapter{name: "test", postings: []model.JobPosting{p}}}

	f := newFixture(adapters, Options{Threshold: scoreOverall - 10, DryRun: true})

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Scored != 1 {
		t.Errorf("Scored = %d, want 1 (dry run still scores)", summary.Scored)
	}
	if summary.HandedOff != 0 || len(f.generator.generated) != 0 {
		t.Error("dry run must not hand off")
	}
	if len(f.store.processed) != 0 {
		t.Errorf("processed = %d records, want 0 in dry run", len(f.store.processed))
	}
	if len(f.store.scores) != 1 {
		t.Errorf("cached scores = %d, want 1 (scores are kept even in dry run)", len(f.store.scores))
	}
}

func TestRun_HandOffFailureLeavesUnprocessed(t *testing.T) {
	p := makePosting("https://example.org/jobs/1", "Role.")
	adapters := []model.SourceAdapter{&fakeAdapter{name: "test", postings: []model.JobPosting{p}}}

	f := newFixture(adapters, Options{Threshold: scoreOverall - 10})
	f.generator.err = errors.New("provider quota exhausted")

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.HandedOff != 0 {
		t.Errorf("HandedOff = %d, want 0", summary.HandedOff)
	}
	if rec, _ := f.store.Processed(p.URL); rec != nil {
		t.Errorf("posting should stay unprocessed for retry next run, got %+v", rec)
	}
	if summary.Errors[StageHandOff] == 0 {
		t.Error("hand-off failure should be recorded")
	}
	if summary.State != StateCompletedWithErrors {
		t.Errorf("State = %s, want %s", summary.State, StateCompletedWithErrors)
	}
}

func TestRun_ScoringFailureLeavesUnprocessed(t *testing.T) {
	p := makePosting("https://example.org/jobs/1", "Role.")
	adapters := []model.SourceAdapter{&fakeAdapter{name: "test", postings: []model.JobPosting{p}}}

	f := newFixture(adapters, Options{Threshold: 50})
	f.provider.response = "not json at all"

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Scored != 0 {
		t.Errorf("Scored = %d, want 0", summary.Scored)
	}
	if summary.Errors[StageScore] == 0 {
		t.Error("scoring failure should be recorded")
	}
	if rec, _ := f.store.Processed(p.URL); rec != nil {
		t.Error("posting with failed scoring must stay unprocessed")
	}
}

func TestRun_FailedSourceDoesNotAbortOthers(t *testing.T) {
	good := &fakeAdapter{name: "good", postings: []model.JobPosting{
		makePosting("https://example.org/jobs/1", "Role."),
	}}
	bad := &fakeAdapter{name: "bad", err: &model.UnavailableError{Source: "bad", Err: errors.New("403")}}

	f := newFixture([]model.SourceAdapter{good, bad}, Options{Threshold: scoreOverall - 10})

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.SourcesFailed != 1 {
		t.Errorf("SourcesFailed = %d, want 1", summary.SourcesFailed)
	}
	if summary.HandedOff != 1 {
		t.Errorf("HandedOff = %d, want 1 from the healthy source", summary.HandedOff)
	}
	if summary.State != StateCompletedWithErrors {
		t.Errorf("State = %s, want %s", summary.State, StateCompletedWithErrors)
	}
}

func TestRun_SameURLFromTwoSourcesHandledOnce(t *testing.T) {
	p := makePosting("https://example.org/jobs/1", "Cross-posted role.")
	boardA := &fakeAdapter{name: "board-a", postings: []model.JobPosting{p}}
	boardB := &fakeAdapter{name: "board-b", postings: []model.JobPosting{p}}

	f := newFixture([]model.SourceAdapter{boardA, boardB}, Options{Threshold: scoreOverall - 10})

	summary, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if summary.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1 (same URL from two sources is one posting)", summary.Fetched)
	}
	if len(f.generator.generated) != 1 {
		t.Errorf("generator invoked %d times for one URL, want 1", len(f.generator.generated))
	}
	if summary.HandedOff != 1 {
		t.Errorf("HandedOff = %d, want 1", summary.HandedOff)
	}
	if len(f.notifier.batches) != 1 || len(f.notifier.batches[0]) != 1 {
		t.Errorf("notifier batches = %+v, want one batch with one candidate", f.notifier.batches)
	}
}

func TestRun_CancelDuringScoringFinalizesNothing(t *testing.T) {
	postings := []model.JobPosting{
		makePosting("https://example.org/jobs/1", "First role."),
		makePosting("https://example.org/jobs/2", "Second role."),
	}
	adapters := []model.SourceAdapter{&fakeAdapter{name: "test", postings: postings}}

	f := newFixture(adapters, Options{Threshold: 50})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.provider.onCall = cancel

	summary, err := f.orch.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.store.processed) != 0 {
		t.Errorf("processed = %d records, want 0 after cancellation", len(f.store.processed))
	}
	if len(f.store.scores) != 0 {
		t.Errorf("cached scores = %d, want 0 from cancelled calls", len(f.store.scores))
	}
	if len(f.generator.generated) != 0 || len(f.notifier.batches) != 0 {
		t.Error("cancelled run must not hand off or notify")
	}
	if summary.State != StateCompletedWithErrors {
		t.Errorf("State = %s, want %s", summary.State, StateCompletedWithErrors)
	}
}

func TestRun_CancelDuringHandOffStopsDispositions(t *testing.T) {
	postings := []model.JobPosting{
		makePosting("https://example.org/jobs/1", "First role."),
		makePosting("https://example.org/jobs/2", "Second role."),
	}
	adapters := []model.SourceAdapter{&fakeAdapter{name: "test", postings: postings}}

	f := newFixture(adapters, Options{Threshold: scoreOverall - 10})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.generator.onGenerate = cancel

	summary, err := f.orch.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if got := len(f.generator.generated); got != 1 {
		t.Errorf("generator calls = %d, want 1 (loop stops once cancelled)", got)
	}
	if len(f.store.processed) != 0 {
		t.Errorf("processed = %d records, want 0 after cancellation", len(f.store.processed))
	}
	if summary.HandedOff != 0 {
		t.Errorf("HandedOff = %d, want 0", summary.HandedOff)
	}
	if len(f.notifier.batches) != 0 {
		t.Error("notifier must not fire after cancellation")
	}
}
