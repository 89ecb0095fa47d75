// Package generator produces application content for above-threshold
// candidates. Its failures never affect dedup or scoring state.
package generator

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/ajolex/job-application-agent/internal/model"
	"github.com/ajolex/job-application-agent/internal/score"
)

//go:embed prompts/cover_letter.md
var coverLetterPromptRaw string

// CoverLetterTemplate is the parsed cover letter prompt template.
var CoverLetterTemplate = template.Must(template.New("cover_letter").Parse(coverLetterPromptRaw))

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

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Ensure CoverLetterGenerator implements model.Generator.
var _ model.Generator = (*CoverLetterGenerator)(nil)

// CoverLetterGenerator writes one LLM-drafted cover letter file per
// candidate. Regenerating for the same posting overwrites the previous file,
// so a changed posting gets a fresh letter.
type CoverLetterGenerator struct {
	provider  score.Provider
	outputDir string
	logger    *slog.Logger
}

// NewCoverLetterGenerator creates a generator writing into outputDir.
func NewCoverLetterGenerator(provider score.Provider, outputDir string, logger *slog.Logger) *CoverLetterGenerator {
	return &CoverLetterGenerator{
		provider:  provider,
		outputDir: outputDir,
		logger:    logger,
	}
}

// Generate drafts a cover letter for the candidate and writes it to disk.
// Returns the path of the written file.
func (g *CoverLetterGenerator) Generate(ctx context.Context, c model.Candidate, profile model.Profile) (string, error) {
	description := truncateDescription(c.Posting.Description)

	var buf bytes.Buffer
	err := CoverLetterTemplate.Execute(&buf, struct {
		Profile     model.Profile
		Posting     model.JobPosting
		Skills      string
		Description string
		Highlights  string
		Concerns    string
	}{
		Profile:     profile,
		Posting:     c.Posting,
		Skills:      strings.Join(profile.Skills, ", "),
		Description: description,
		Highlights:  strings.Join(c.Score.Highlights, "; "),
		Concerns:    strings.Join(c.Score.Concerns, "; "),
	})
	if err != nil {
		return "", fmt.Errorf("render cover letter prompt: %w", err)
	}

	letter, err := g.provider.Complete(ctx, buf.String())
	if err != nil {
		return "", fmt.Errorf("generate cover letter for %s: %w", c.Posting.URL, err)
	}

	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(g.outputDir, slugify(c.Posting.Organization, c.Posting.Title)+".txt")
	if err := os.WriteFile(path, []byte(letter), 0o644); err != nil {
		return "", fmt.Errorf("write cover letter: %w", err)
	}

	g.logger.Info("cover letter written", "path", path, "organization", c.Posting.Organization, "title", c.Posting.Title)
	return path, nil
}

func slugify(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, " "))
	slug := strings.Trim(slugUnsafe.ReplaceAllString(joined, "-"), "-")
	if len(slug) > 80 {
		slug = slug[:80]
	}
	if slug == "" {
		slug = "cover-letter"
	}
	return slug
}
