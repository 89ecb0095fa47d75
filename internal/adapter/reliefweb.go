package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ajolex/job-application-agent/internal/model"
)

const (
	reliefWebDefaultURL = "https://api.reliefweb.int/v1/jobs"
	reliefWebPageSize   = 20
)

// reliefWebQuery is the POST body for the ReliefWeb jobs API.
type reliefWebQuery struct {
	Query  reliefWebQueryValue `json:"query"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
	Fields reliefWebFields     `json:"fields"`
	Sort   []string            `json:"sort"`
}

type reliefWebQueryValue struct {
	Value    string `json:"value"`
	Operator string `json:"operator"`
}

type reliefWebFields struct {
	Include []string `json:"include"`
}

// reliefWebResponse is the relevant subset of the API response.
type reliefWebResponse struct {
	TotalCount int             `json:"totalCount"`
	Data       []reliefWebItem `json:"data"`
}

type reliefWebItem struct {
	ID     json.Number `json:"id"`
	Fields struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Body    string `json:"body"`
		HowTo   string `json:"how_to_apply"`
		Source  []struct {
			Name string `json:"name"`
		} `json:"source"`
		Country []struct {
			Name string `json:"name"`
		} `json:"country"`
		Date struct {
			Created string `json:"created"`
			Closing string `json:"closing"`
		} `json:"date"`
		Type []struct {
			Name string `json:"name"`
		} `json:"type"`
	} `json:"fields"`
}

// ReliefWebAdapter fetches jobs from the ReliefWeb public REST API using
// offset pagination.
type ReliefWebAdapter struct {
	apiURL   string
	minDelay time.Duration
	maxPages int
	client   *http.Client
	logger   *slog.Logger
}

// NewReliefWebAdapter creates an adapter for the ReliefWeb jobs API.
// An empty apiURL selects the public endpoint.
func NewReliefWebAdapter(apiURL string, minDelay time.Duration, maxPages int, client *http.Client, logger *slog.Logger) *ReliefWebAdapter {
	if apiURL == "" {
		apiURL = reliefWebDefaultURL
	}
	return &ReliefWebAdapter{
		apiURL:   apiURL,
		minDelay: minDelay,
		maxPages: maxPages,
		client:   client,
		logger:   logger,
	}
}

func (a *ReliefWebAdapter) Name() string            { return "reliefweb" }
func (a *ReliefWebAdapter) MinDelay() time.Duration { return a.minDelay }
func (a *ReliefWebAdapter) MaxPages() int           { return a.maxPages }

// FetchPage retrieves one page of results (pages are 1-based) and normalizes
// each item into the unified JobPosting model. A malformed item is skipped
// and logged; it never aborts the page.
func (a *ReliefWebAdapter) FetchPage(ctx context.Context, keywords []string, page int) (*model.Page, error) {
	query := reliefWebQuery{
		Query: reliefWebQueryValue{
			Value:    strings.Join(keywords, " OR "),
			Operator: "OR",
		},
		Limit:  reliefWebPageSize,
		Offset: (page - 1) * reliefWebPageSize,
		Fields: reliefWebFields{
			Include: []string{
				"id", "title", "url", "source.name",
				"date.created", "date.closing",
				"body", "how_to_apply", "country.name", "type.name",
			},
		},
		Sort: []string{"date.created:desc"},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("reliefweb: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reliefweb fetch page %d: %w", page, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reliefweb fetch page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(a.Name(), resp)
	}

	var rwResp reliefWebResponse
	if err := json.NewDecoder(resp.Body).Decode(&rwResp); err != nil {
		return nil, fmt.Errorf("reliefweb fetch page %d: decode: %w", page, err)
	}

	postings := make([]model.JobPosting, 0, len(rwResp.Data))
	for _, item := range rwResp.Data {
		posting, err := a.parseItem(item)
		if err != nil {
			a.logger.Warn("skipping malformed reliefweb item", "id", item.ID.String(), "error", err)
			continue
		}
		postings = append(postings, posting)
	}

	return &model.Page{
		Postings: postings,
		HasMore:  query.Offset+reliefWebPageSize < rwResp.TotalCount,
	}, nil
}

func (a *ReliefWebAdapter) parseItem(item reliefWebItem) (model.JobPosting, error) {
	f := item.Fields

	canonical, err := model.CanonicalURL(f.URL)
	if err != nil {
		return model.JobPosting{}, err
	}
	if f.Title == "" {
		return model.JobPosting{}, fmt.Errorf("item %s has no title", item.ID.String())
	}

	organization := "Unknown"
	if len(f.Source) > 0 && f.Source[0].Name != "" {
		organization = f.Source[0].Name
	}

	location := "Global"
	if len(f.Country) > 0 {
		names := make([]string, 0, len(f.Country))
		for _, c := range f.Country {
			names = append(names, c.Name)
		}
		location = strings.Join(names, ", ")
	}

	description := extractText(f.Body)
	if f.HowTo != "" {
		description += "\n\nHow to apply: " + extractText(f.HowTo)
	}

	jobType := ""
	if len(f.Type) > 0 {
		jobType = f.Type[0].Name
	}

	return model.JobPosting{
		URL:          canonical,
		Title:        f.Title,
		Organization: organization,
		Location:     location,
		Description:  description,
		PostedDate:   f.Date.Created,
		Deadline:     f.Date.Closing,
		JobType:      jobType,
		Source:       a.Name(),
		FetchedAt:    time.Now(),
	}, nil
}
