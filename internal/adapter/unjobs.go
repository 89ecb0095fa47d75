package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/ajolex/job-application-agent/internal/model"
)

const unjobsUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// UNJobsAdapter scrapes job listings from the UNJobs board. The board has no
// API; listings are parsed out of the search result HTML with colly.
type UNJobsAdapter struct {
	baseURL  string
	minDelay time.Duration
	maxPages int
	logger   *slog.Logger
}

// NewUNJobsAdapter creates an adapter for UNJobs search pages. An empty
// baseURL selects the public site.
func NewUNJobsAdapter(baseURL string, minDelay time.Duration, maxPages int, logger *slog.Logger) *UNJobsAdapter {
	if baseURL == "" {
		baseURL = "https://unjobs.org"
	}
	return &UNJobsAdapter{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		minDelay: minDelay,
		maxPages: maxPages,
		logger:   logger,
	}
}

func (a *UNJobsAdapter) Name() string            { return "unjobs" }
func (a *UNJobsAdapter) MinDelay() time.Duration { return a.minDelay }
func (a *UNJobsAdapter) MaxPages() int           { return a.maxPages }

// FetchPage scrapes one search result page. A listing element that fails to
// parse is skipped and logged; the rest of the page continues.
func (a *UNJobsAdapter) FetchPage(ctx context.Context, keywords []string, page int) (*model.Page, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s&page=%d",
		a.baseURL, url.QueryEscape(strings.Join(keywords, " ")), page)

	c := colly.NewCollector(
		colly.UserAgent(unjobsUserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)

	var postings []model.JobPosting
	var hasNext bool
	var fetchErr error

	c.OnHTML("tr.job-row, div.job-listing, article.job", func(e *colly.HTMLElement) {
		posting, err := a.parseListing(e)
		if err != nil {
			a.logger.Warn("skipping malformed unjobs listing", "page", page, "error", err)
			return
		}
		postings = append(postings, posting)
	})

	c.OnHTML("a.next, a[rel=next]", func(_ *colly.HTMLElement) {
		hasNext = true
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			resp := &http.Response{StatusCode: r.StatusCode, Header: *r.Headers}
			fetchErr = statusError(a.Name(), resp)
			return
		}
		fetchErr = err
	})

	visitErr := c.Visit(searchURL)
	if fetchErr != nil {
		return nil, fmt.Errorf("unjobs fetch page %d: %w", page, fetchErr)
	}
	if visitErr != nil {
		return nil, fmt.Errorf("unjobs fetch page %d: %w", page, visitErr)
	}

	// The next link is the pagination signal; a populated page without one
	// is the last page. The executor's zero-new-listings guard backstops
	// sources whose markup drops the link.
	return &model.Page{
		Postings: postings,
		HasMore:  hasNext,
	}, nil
}

func (a *UNJobsAdapter) parseListing(e *colly.HTMLElement) (model.JobPosting, error) {
	title := strings.TrimSpace(e.ChildText("a.job-title, td.title a, h3 a, .title a"))
	href := e.ChildAttr("a.job-title, td.title a, h3 a, .title a", "href")
	if title == "" || href == "" {
		return model.JobPosting{}, fmt.Errorf("listing has no title link")
	}

	canonical, err := model.CanonicalURL(e.Request.AbsoluteURL(href))
	if err != nil {
		return model.JobPosting{}, err
	}

	organization := strings.TrimSpace(e.ChildText(".organization, td.org, .company"))
	if organization == "" {
		organization = "UN Organization"
	}

	location := strings.TrimSpace(e.ChildText(".location, td.location, .duty-station"))
	if location == "" {
		location = "Various"
	}

	return model.JobPosting{
		URL:          canonical,
		Title:        title,
		Organization: organization,
		Location:     location,
		Description:  strings.TrimSpace(e.ChildText(".summary, .job-summary, td.summary")),
		Deadline:     strings.TrimSpace(e.ChildText(".deadline, td.deadline, .closing-date")),
		Source:       a.Name(),
		FetchedAt:    time.Now(),
	}, nil
}
