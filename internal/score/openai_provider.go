package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ajolex/job-application-agent/internal/model"
)

// matchScoreSchema is the JSON Schema enforced server-side via OpenAI
// structured outputs. The schema matches rawScore exactly so the response
// can be parsed directly.
var matchScoreSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"overall_score":       map[string]any{"type": "number", "minimum": 0, "maximum": 100},
		"skills_match":        map[string]any{"type": "number", "minimum": 0, "maximum": 100},
		"experience_match":    map[string]any{"type": "number", "minimum": 0, "maximum": 100},
		"domain_match":        map[string]any{"type": "number", "minimum": 0, "maximum": 100},
		"qualification_match": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
		"reasoning":           map[string]any{"type": "string"},
		"highlights": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"concerns": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{
		"overall_score", "skills_match", "experience_match",
		"domain_match", "qualification_match", "reasoning",
		"highlights", "concerns",
	},
}

// OpenAIProvider calls the OpenAI /v1/chat/completions endpoint. When a
// schema is set, structured outputs guarantee the response conforms to it.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	system     string
	schema     *jsonSchemaSpec
	httpClient *http.Client
}

// NewScoringProvider creates a provider returning match_score-shaped JSON
// enforced server-side via structured outputs.
func NewScoringProvider(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		system:     "You are an expert career advisor who evaluates how well a candidate profile matches a job posting.",
		schema:     &jsonSchemaSpec{Name: "match_score", Schema: matchScoreSchema},
		httpClient: httpClient,
	}
}

// NewTextProvider creates a provider returning free text, used by the
// cover-letter generator.
func NewTextProvider(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		system:     "You are a professional writer drafting job application cover letters.",
		httpClient: httpClient,
	}
}

// chatRequest mirrors the OpenAI /v1/chat/completions request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    int             `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaSpec `json:"json_schema"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// chatResponse mirrors the relevant fields of the OpenAI response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends prompt to OpenAI and returns the response text. Transient
// failures surface as HTTPError so the shared retry policy can inspect
// status and Retry-After.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   2048,
	}
	if p.schema != nil {
		reqBody.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: *p.schema,
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal scoring request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("scoring request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read scoring response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("scoring service: %s", string(respBytes)),
		}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBytes, &chatResp); err != nil {
		return "", fmt.Errorf("parse scoring response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("scoring service error (%s): %s", chatResp.Error.Type, chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("scoring service returned no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// parseRetryAfter parses a Retry-After header in seconds format.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
