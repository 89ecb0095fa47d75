// Package prefilter rejects postings on cheap local grounds before any paid
// scoring call is made.
package prefilter

import (
	"fmt"
	"strings"
)

// Phrases indicating visa sponsorship is not available.
var noVisaPhrases = []string{
	"no visa sponsorship",
	"will not sponsor",
	"cannot sponsor",
	"not able to sponsor",
	"unable to sponsor",
	"does not sponsor",
	"won't sponsor",
	"sponsorship not available",
	"sponsorship is not available",
	"no sponsorship",
	"must be authorized to work",
	"must have work authorization",
	"without sponsorship",
	"work authorization required",
}

// Phrases indicating citizenship or clearance requirements that exclude
// international candidates.
var citizenshipPhrases = []string{
	"us citizen",
	"u.s. citizen",
	"united states citizen",
	"citizenship required",
	"must be a citizen",
	"citizens only",
	"us nationals only",
	"u.s. nationals",
	"security clearance required",
	"secret clearance",
	"ts/sci clearance",
	"us persons only",
	"u.s. persons only",
	"itar restricted",
	"export control",
}

// Filter rejects postings whose description matches a disqualifying phrase,
// case-insensitively.
type Filter struct {
	phrases []string
}

// New creates a filter from the built-in visa/citizenship phrase sets plus
// any extra configured phrases.
func New(extra []string) *Filter {
	phrases := make([]string, 0, len(noVisaPhrases)+len(citizenshipPhrases)+len(extra))
	phrases = append(phrases, noVisaPhrases...)
	phrases = append(phrases, citizenshipPhrases...)
	for _, p := range extra {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Filter{phrases: phrases}
}

// Check returns (true, "") when the description is eligible, or (false,
// reason) naming the phrase that disqualified it. An empty description is
// eligible; there is nothing to reject on.
func (f *Filter) Check(description string) (bool, string) {
	if description == "" {
		return true, ""
	}
	lower := strings.ToLower(description)
	for _, phrase := range f.phrases {
		if strings.Contains(lower, phrase) {
			return false, fmt.Sprintf("disqualifying phrase %q found in description", phrase)
		}
	}
	return true, ""
}
