package generator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ajolex/job-application-agent/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider records the prompt and returns a canned letter.
type fakeProvider struct {
	prompt string
	letter string
	err    error
}

func (p *fakeProvider) Complete(_ context.Context, prompt string) (string, error) {
	p.prompt = prompt
	return p.letter, p.err
}

func testCandidate() model.Candidate {
	return model.Candidate{
		Posting: model.JobPosting{
			URL:          "https://example.org/jobs/1",
			Title:        "Programme Officer, Climate",
			Organization: "UNDP",
			Description:  "Lead the adaptation portfolio.",
		},
		Score: model.MatchScore{
			Overall:    80,
			Highlights: []string{"strong data skills"},
			Concerns:   []string{"limited field experience"},
		},
	}
}

func TestGenerateWritesLetter(t *testing.T) {
	dir := t.TempDir()
	provider := &fakeProvider{letter: "Dear Hiring Manager,\n\nI am excited to apply."}
	g := NewCoverLetterGenerator(provider, dir, discardLogger())

	profile := model.Profile{Name: "Ada Example", Skills: []string{"python", "go"}}
	path, err := g.Generate(context.Background(), testCandidate(), profile)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if filepath.Base(path) != "undp-programme-officer-climate.txt" {
		t.Errorf("file name = %q", filepath.Base(path))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading letter: %v", err)
	}
	if string(content) != provider.letter {
		t.Errorf("letter content = %q", content)
	}

	// The prompt carries the posting, profile, and score context.
	for _, want := range []string{"Programme Officer, Climate", "Ada Example", "strong data skills"} {
		if !strings.Contains(provider.prompt, want) {
			t.Errorf("prompt should contain %q", want)
		}
	}
}

func TestGenerateOverwritesOnRegeneration(t *testing.T) {
	dir := t.TempDir()
	provider := &fakeProvider{letter: "first draft"}
	g := NewCoverLetterGenerator(provider, dir, discardLogger())
	profile := model.Profile{Name: "Ada Example"}

	first, err := g.Generate(context.Background(), testCandidate(), profile)
	if err != nil {
		t.Fatal(err)
	}

	provider.letter = "second draft"
	second, err := g.Generate(context.Background(), testCandidate(), profile)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Errorf("regeneration should reuse the path: %q vs %q", first, second)
	}
	content, _ := os.ReadFile(second)
	if string(content) != "second draft" {
		t.Errorf("content = %q, want the fresh draft", content)
	}
}

func TestGenerateProviderFailure(t *testing.T) {
	dir := t.TempDir()
	provider := &fakeProvider{err: os.ErrDeadlineExceeded}
	g := NewCoverLetterGenerator(provider, dir, discardLogger())

	if _, err := g.Generate(context.Background(), testCandidate(), model.Profile{Name: "A"}); err == nil {
		t.Fatal("expected error")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no file should be written on provider failure, found %d", len(entries))
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"UNDP", "Programme Officer, Climate"}, "undp-programme-officer-climate"},
		{[]string{"", ""}, "cover-letter"},
		{[]string{"Org/Name", "R&D Lead"}, "org-name-r-d-lead"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in...); got != tt.want {
			t.Errorf("slugify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateTruncatesAtRuneBoundary(t *testing.T) {
	dir := t.TempDir()
	provider := &fakeProvider{letter: "Dear Hiring Manager,"}
	g := NewCoverLetterGenerator(provider, dir, discardLogger())

	c := testCandidate()
	// Two ASCII bytes shift the repeated 3-byte runes off the limit
	// boundary, so a byte-offset cut would land mid-rune.
	c.Posting.Description = "ab" + strings.Repeat("日", 1200)

	if _, err := g.Generate(context.Background(), c, model.Profile{Name: "Ada Example"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !utf8.ValidString(provider.prompt) {
		t.Error("prompt contains a split rune from byte-offset truncation")
	}
}
