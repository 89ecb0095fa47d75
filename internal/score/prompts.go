package score

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/match_scoring.md
var matchScoringPromptRaw string

// MatchScoringTemplate is the parsed prompt template for match scoring.
// Parsed once at package init; reused on every scoring call.
var MatchScoringTemplate = template.Must(template.New("match_scoring").Parse(matchScoringPromptRaw))
