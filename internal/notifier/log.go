package notifier

import (
	"log/slog"

	"github.com/ajolex/job-application-agent/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes the above-threshold batch to the given logger as
// structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each candidate via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each candidate with organization, title, score, and URL.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(candidates []model.Candidate) error {
	for _, c := range candidates {
		n.logger.Info("job match",
			"organization", c.Posting.Organization,
			"title", c.Posting.Title,
			"location", c.Posting.Location,
			"score", c.Score.Overall,
			"url", c.Posting.URL,
		)
	}
	return nil
}
