package adapter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ajolex/job-application-agent/internal/model"
)

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// statusError converts a non-2xx response into a typed error the retry layer
// can inspect. 401/403 mean the source will refuse every request this run,
// so they surface as UnavailableError instead.
func statusError(source string, resp *http.Response) error {
	httpErr := &model.HTTPError{
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &model.UnavailableError{Source: source, Err: httpErr}
	}
	return httpErr
}
