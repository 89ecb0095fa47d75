package model

import (
	"context"
	"fmt"
	"math"
)

// Sub-score weights for the overall match score. The overall score returned
// by the scoring service must agree with this weighted combination within
// ScoreTolerance or the response is treated as malformed.
const (
	WeightSkills         = 0.35
	WeightExperience     = 0.30
	WeightDomain         = 0.20
	WeightQualifications = 0.15

	ScoreTolerance = 2.0
)

// MatchScore is the structured result of scoring one posting against a
// profile. All scores are in [0,100].
type MatchScore struct {
	Overall        float64
	Skills         float64
	Experience     float64
	Domain         float64
	Qualifications float64
	Reasoning      string
	Highlights     []string
	Concerns       []string
}

// WeightedOverall recomputes the overall score from the sub-scores.
func (s MatchScore) WeightedOverall() float64 {
	return WeightSkills*s.Skills +
		WeightExperience*s.Experience +
		WeightDomain*s.Domain +
		WeightQualifications*s.Qualifications
}

// Validate checks range constraints and consistency of the overall score
// with the weighted sub-score combination.
func (s MatchScore) Validate() error {
	for name, v := range map[string]float64{
		"overall":        s.Overall,
		"skills":         s.Skills,
		"experience":     s.Experience,
		"domain":         s.Domain,
		"qualifications": s.Qualifications,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s score %.1f out of range [0,100]", name, v)
		}
	}

	if diff := math.Abs(s.Overall - s.WeightedOverall()); diff > ScoreTolerance {
		return fmt.Errorf("overall score %.1f inconsistent with weighted sub-scores %.1f (diff %.1f)",
			s.Overall, s.WeightedOverall(), diff)
	}

	return nil
}

// Profile is the candidate profile scored against every posting. It is
// derived once per run and treated as immutable; Version is a stable hash of
// the underlying profile document and participates in the score cache key so
// a profile change invalidates stale cached scores.
type Profile struct {
	Name              string
	Summary           string
	Skills            []string
	Education         string
	Experience        string
	ResearchInterests []string
	YearsOfExperience int
	Version           string
}

// ProfileProvider exposes the current candidate profile.
type ProfileProvider interface {
	CurrentProfile() (Profile, error)
}

// Candidate pairs a posting with its match score for thresholding and
// hand-off.
type Candidate struct {
	Posting JobPosting
	Score   MatchScore
}

// Generator produces downstream application content (cover letter) for one
// above-threshold candidate. Returns the path of the generated artifact.
type Generator interface {
	Generate(ctx context.Context, c Candidate, profile Profile) (string, error)
}

// Notifier delivers the per-run summary of above-threshold candidates.
type Notifier interface {
	Notify(candidates []Candidate) error
}
