package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const minimalConfig = `
keywords: [climate, health]
threshold: 70
sources:
  - name: reliefweb
    enabled: true
scoring:
  model: gpt-4o-mini
  api_key: sk-test
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Threshold != 70 {
		t.Errorf("threshold = %v, want 70", cfg.Threshold)
	}
	if cfg.Sources[0].MinDelay != defaultMinDelay {
		t.Errorf("min_delay = %v, want default %v", cfg.Sources[0].MinDelay, defaultMinDelay)
	}
	if cfg.Sources[0].MaxPages != defaultMaxPages {
		t.Errorf("max_pages = %d, want default %d", cfg.Sources[0].MaxPages, defaultMaxPages)
	}
	if cfg.Scoring.BaseURL != defaultOpenAIBaseURL {
		t.Errorf("base_url = %q, want default", cfg.Scoring.BaseURL)
	}
	if cfg.Scoring.Concurrency != defaultConcurrency {
		t.Errorf("concurrency = %d, want default %d", cfg.Scoring.Concurrency, defaultConcurrency)
	}
	if cfg.Retry.MaxRetries != 2 || cfg.Retry.BaseDelay != 2*time.Second || cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("retry defaults = %+v", cfg.Retry)
	}
	if cfg.Database.Path != "jobs.db" {
		t.Errorf("database path = %q, want jobs.db", cfg.Database.Path)
	}
	if cfg.Profile.Path != "profile.yaml" {
		t.Errorf("profile path = %q, want profile.yaml", cfg.Profile.Path)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
keywords: [climate]
threshold: 60
sources:
  - name: unjobs
    enabled: true
    min_delay: 3s
    max_pages: 2
scoring:
  model: gpt-4o-mini
  api_key: sk-test
  timeout: 90s
retry:
  max_retries: 1
  base_delay: 500ms
database:
  retention: 2160h
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sources[0].MinDelay != 3*time.Second {
		t.Errorf("min_delay = %v, want 3s", cfg.Sources[0].MinDelay)
	}
	if cfg.Sources[0].MaxPages != 2 {
		t.Errorf("max_pages = %d, want 2", cfg.Sources[0].MaxPages)
	}
	if cfg.Scoring.Timeout != 90*time.Second {
		t.Errorf("timeout = %v, want 90s", cfg.Scoring.Timeout)
	}
	if cfg.Retry.MaxRetries != 1 || cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Database.Retention != 2160*time.Hour {
		t.Errorf("retention = %v, want 2160h", cfg.Database.Retention)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_SCORING_KEY", "sk-from-env")

	cfg, err := Load(writeConfig(t, `
keywords: [climate]
threshold: 70
sources:
  - name: reliefweb
    enabled: true
scoring:
  model: gpt-4o-mini
  api_key: ${TEST_SCORING_KEY}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scoring.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want expanded env value", cfg.Scoring.APIKey)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing threshold",
			content: `
keywords: [climate]
sources: [{name: reliefweb, enabled: true}]
scoring: {model: gpt-4o-mini, api_key: sk-test}
`,
		},
		{
			name: "threshold out of range",
			content: `
keywords: [climate]
threshold: 120
sources: [{name: reliefweb, enabled: true}]
scoring: {model: gpt-4o-mini, api_key: sk-test}
`,
		},
		{
			name: "no keywords",
			content: `
threshold: 70
sources: [{name: reliefweb, enabled: true}]
scoring: {model: gpt-4o-mini, api_key: sk-test}
`,
		},
		{
			name: "no enabled sources",
			content: `
keywords: [climate]
threshold: 70
sources: [{name: reliefweb, enabled: false}]
scoring: {model: gpt-4o-mini, api_key: sk-test}
`,
		},
		{
			name: "missing api key",
			content: `
keywords: [climate]
threshold: 70
sources: [{name: reliefweb, enabled: true}]
scoring: {model: gpt-4o-mini}
`,
		},
		{
			name: "slack without webhook",
			content: `
keywords: [climate]
threshold: 70
sources: [{name: reliefweb, enabled: true}]
scoring: {model: gpt-4o-mini, api_key: sk-test}
notification: {type: slack}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
