package model

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// JobPosting is the unified representation of a job listing from any source.
// URL is the canonical natural key: two postings with the same URL are the
// same entity regardless of which source produced them.
type JobPosting struct {
	URL          string    // canonical posting URL, primary key
	Title        string    // job title
	Organization string    // hiring organization
	Location     string    // location string, free-form
	Description  string    // full description text
	PostedDate   string    // raw posted-date string as the source reports it
	Deadline     string    // application deadline, empty if not given
	Salary       string    // optional salary text
	JobType      string    // optional (full-time, consultancy, ...)
	Source       string    // adapter name
	FetchedAt    time.Time // our clock, set by the adapter
}

// Page is one page of results from a source adapter, in source order.
type Page struct {
	Postings []JobPosting
	HasMore  bool // source signals more results exist
}

// SourceAdapter fetches job listings from one source, one page at a time.
// FetchPage is restartable per call; the executor owns pacing, retries, and
// pagination termination.
type SourceAdapter interface {
	Name() string
	MinDelay() time.Duration
	MaxPages() int
	FetchPage(ctx context.Context, keywords []string, page int) (*Page, error)
}

// Disposition values recorded for a posting once its run is finalized.
const (
	DispositionMatched        = "matched"
	DispositionPrefiltered    = "rejected:prefilter"
	DispositionBelowThreshold = "rejected:below-threshold"
)

// trackingParams are query parameters stripped during URL canonicalization.
// They vary per click, not per posting, and would break dedup by URL.
var trackingParams = map[string]bool{
	"ref":    true,
	"source": true,
	"fbclid": true,
	"gclid":  true,
	"mc_cid": true,
	"mc_eid": true,
}

// CanonicalURL normalizes a posting URL for use as the dedup key: requires an
// absolute http(s) URL, lowercases scheme and host, drops the fragment,
// strips tracking query parameters, and trims the trailing slash.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("url %q is not absolute http(s)", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}
