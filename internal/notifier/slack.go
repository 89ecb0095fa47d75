package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ajolex/job-application-agent/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier sends one run-summary message to a Slack channel via
// Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier posting the run summary via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify sends the above-threshold batch as a single Block Kit message,
// highest score first. One outbound summary per run; failures are reported
// to the caller, never retried here.
func (n *SlackNotifier) Notify(candidates []model.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	payload := buildSummaryPayload(candidates)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	resp, err := n.httpClient.Post(n.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		secs, _ := strconv.Atoi(retryAfter)
		if secs <= 0 {
			secs = 1
		}
		n.logger.Warn("slack rate limited, retrying", "retry_after_secs", secs)
		time.Sleep(time.Duration(secs) * time.Second)

		resp2, err := n.httpClient.Post(n.webhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", resp2.StatusCode)
		}
		n.logger.Info("slack summary sent", "matches", len(candidates), "retried", true)
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	n.logger.Info("slack summary sent", "matches", len(candidates))
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func buildSummaryPayload(candidates []model.Candidate) slackPayload {
	sorted := make([]model.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score.Overall > sorted[j].Score.Overall
	})

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type: "plain_text",
				Text: fmt.Sprintf("Job matches: %d above threshold", len(sorted)),
			},
		},
	}

	for _, c := range sorted {
		var b strings.Builder
		fmt.Fprintf(&b, "*<%s|%s>* · %s\n", c.Posting.URL, c.Posting.Title, c.Posting.Organization)
		fmt.Fprintf(&b, "Score *%.0f* (skills %.0f, experience %.0f, domain %.0f, qualifications %.0f)\n",
			c.Score.Overall, c.Score.Skills, c.Score.Experience, c.Score.Domain, c.Score.Qualifications)
		if c.Posting.Location != "" {
			fmt.Fprintf(&b, "Location: %s", c.Posting.Location)
		}
		if c.Posting.Deadline != "" {
			fmt.Fprintf(&b, " | Deadline: %s", c.Posting.Deadline)
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: b.String()},
		})
	}

	return slackPayload{Blocks: blocks}
}
