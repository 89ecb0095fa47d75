package score

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ajolex/job-application-agent/internal/model"
)

func TestComplete_StructuredOutputRequest(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"overall_score": 70}`}},
			},
		})
	}))
	defer srv.Close()

	p := NewScoringProvider(srv.URL, "sk-test", "gpt-4o-mini", srv.Client())

	content, err := p.Complete(context.Background(), "score this")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != `{"overall_score": 70}` {
		t.Errorf("content = %q", content)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_schema" {
		t.Errorf("scoring provider must request structured output, got %+v", gotReq.ResponseFormat)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "score this" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestComplete_TextProviderOmitsSchema(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Dear Hiring Manager,"}},
			},
		})
	}))
	defer srv.Close()

	p := NewTextProvider(srv.URL, "sk-test", "gpt-4o-mini", srv.Client())

	if _, err := p.Complete(context.Background(), "draft a letter"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotReq.ResponseFormat != nil {
		t.Errorf("text provider must not request structured output, got %+v", gotReq.ResponseFormat)
	}
}

func TestComplete_RateLimitSurfacesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewScoringProvider(srv.URL, "sk-test", "gpt-4o-mini", srv.Client())

	_, err := p.Complete(context.Background(), "score this")
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", httpErr.StatusCode)
	}
	if httpErr.RetryAfter != 12*time.Second {
		t.Errorf("retry-after = %v, want 12s", httpErr.RetryAfter)
	}
}

func TestComplete_APIErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model not found", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	p := NewScoringProvider(srv.URL, "sk-test", "bad-model", srv.Client())

	if _, err := p.Complete(context.Background(), "score this"); err == nil {
		t.Fatal("expected error from API error body")
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p := NewScoringProvider(srv.URL, "sk-test", "gpt-4o-mini", srv.Client())

	if _, err := p.Complete(context.Background(), "score this"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
