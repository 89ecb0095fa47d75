package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the job agent. Any validation failure
// here is fatal: the run aborts before any fetch begins.
type Config struct {
	Keywords     []string
	Threshold    float64
	Sources      []SourceConfig
	Scoring      ScoringConfig
	Prefilter    PrefilterConfig
	Retry        RetryConfig
	Profile      ProfileConfig
	Database     DatabaseConfig
	Output       OutputConfig
	Notification NotificationConfig
}

// SourceConfig describes one job source to fetch from.
type SourceConfig struct {
	Name     string        // adapter name: "reliefweb" or "unjobs"
	Enabled  bool
	BaseURL  string        // endpoint override, empty selects the default
	MinDelay time.Duration // minimum gap between requests to this source
	MaxPages int
}

// ScoringConfig controls the external scoring service.
type ScoringConfig struct {
	BaseURL     string        // defaults to https://api.openai.com/v1
	Model       string        // model identifier, e.g. "gpt-4o-mini"
	APIKey      string        // expanded from env var by Load
	Timeout     time.Duration // per-request timeout
	Concurrency int           // fixed bound on simultaneous scoring calls
}

// PrefilterConfig holds extra disqualifying phrases beyond the built-ins.
type PrefilterConfig struct {
	ExtraPhrases []string
}

// RetryConfig controls the shared backoff policy.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// ProfileConfig locates the candidate profile file.
type ProfileConfig struct {
	Path string
}

// DatabaseConfig locates the store and its retention window.
type DatabaseConfig struct {
	Path      string
	Retention time.Duration // 0 disables cleanup
}

// OutputConfig holds output paths.
type OutputConfig struct {
	CoverLettersDir string
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultMinDelay      = 2 * time.Second
	defaultMaxPages      = 5
	defaultConcurrency   = 3
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations
// as strings).
type rawConfig struct {
	Keywords     []string           `yaml:"keywords"`
	Threshold    *float64           `yaml:"threshold"`
	Sources      []rawSourceConfig  `yaml:"sources"`
	Scoring      rawScoringConfig   `yaml:"scoring"`
	Prefilter    rawPrefilterConfig `yaml:"prefilter"`
	Retry        rawRetryConfig     `yaml:"retry"`
	Profile      ProfileConfig      `yaml:"profile"`
	Database     rawDatabaseConfig  `yaml:"database"`
	Output       rawOutputConfig    `yaml:"output"`
	Notification NotificationConfig `yaml:"notification"`
}

type rawSourceConfig struct {
	Name     string `yaml:"name"`
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url"`
	MinDelay string `yaml:"min_delay"`
	MaxPages int    `yaml:"max_pages"`
}

type rawScoringConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	Timeout     string `yaml:"timeout"`
	Concurrency int    `yaml:"concurrency"`
}

type rawPrefilterConfig struct {
	ExtraPhrases []string `yaml:"extra_phrases"`
}

type rawRetryConfig struct {
	MaxRetries *int   `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
	MaxDelay   string `yaml:"max_delay"`
}

type rawDatabaseConfig struct {
	Path      string `yaml:"path"`
	Retention string `yaml:"retention"`
}

type rawOutputConfig struct {
	CoverLettersDir string `yaml:"cover_letters_dir"`
}

// Load reads and parses the YAML config file at path, validates it, and
// returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables (API keys, webhook URLs).
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		Keywords:     raw.Keywords,
		Prefilter:    PrefilterConfig{ExtraPhrases: raw.Prefilter.ExtraPhrases},
		Profile:      raw.Profile,
		Notification: raw.Notification,
	}

	if raw.Threshold == nil {
		return nil, fmt.Errorf("threshold is required")
	}
	cfg.Threshold = *raw.Threshold
	if cfg.Threshold < 0 || cfg.Threshold > 100 {
		return nil, fmt.Errorf("threshold %.1f out of range [0,100]", cfg.Threshold)
	}

	if len(cfg.Keywords) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}

	for _, rs := range raw.Sources {
		sc := SourceConfig{
			Name:     rs.Name,
			Enabled:  rs.Enabled,
			BaseURL:  rs.BaseURL,
			MinDelay: defaultMinDelay,
			MaxPages: rs.MaxPages,
		}
		if rs.MinDelay != "" {
			d, err := time.ParseDuration(rs.MinDelay)
			if err != nil {
				return nil, fmt.Errorf("parse sources.%s.min_delay %q: %w", rs.Name, rs.MinDelay, err)
			}
			sc.MinDelay = d
		}
		if sc.MaxPages <= 0 {
			sc.MaxPages = defaultMaxPages
		}
		cfg.Sources = append(cfg.Sources, sc)
	}

	enabled := 0
	for _, s := range cfg.Sources {
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return nil, fmt.Errorf("no sources enabled")
	}

	cfg.Scoring = ScoringConfig{
		BaseURL:     raw.Scoring.BaseURL,
		Model:       raw.Scoring.Model,
		APIKey:      raw.Scoring.APIKey,
		Timeout:     60 * time.Second,
		Concurrency: raw.Scoring.Concurrency,
	}
	if cfg.Scoring.BaseURL == "" {
		cfg.Scoring.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Scoring.Model == "" {
		return nil, fmt.Errorf("scoring.model is required")
	}
	if cfg.Scoring.APIKey == "" {
		return nil, fmt.Errorf("scoring.api_key is required (set the env var it references)")
	}
	if raw.Scoring.Timeout != "" {
		d, err := time.ParseDuration(raw.Scoring.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse scoring.timeout %q: %w", raw.Scoring.Timeout, err)
		}
		cfg.Scoring.Timeout = d
	}
	if cfg.Scoring.Concurrency <= 0 {
		cfg.Scoring.Concurrency = defaultConcurrency
	}

	cfg.Retry = RetryConfig{MaxRetries: 2, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	if raw.Retry.MaxRetries != nil {
		if *raw.Retry.MaxRetries < 0 {
			return nil, fmt.Errorf("retry.max_retries must be >= 0")
		}
		cfg.Retry.MaxRetries = *raw.Retry.MaxRetries
	}
	if raw.Retry.BaseDelay != "" {
		d, err := time.ParseDuration(raw.Retry.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("parse retry.base_delay %q: %w", raw.Retry.BaseDelay, err)
		}
		cfg.Retry.BaseDelay = d
	}
	if raw.Retry.MaxDelay != "" {
		d, err := time.ParseDuration(raw.Retry.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("parse retry.max_delay %q: %w", raw.Retry.MaxDelay, err)
		}
		cfg.Retry.MaxDelay = d
	}

	if cfg.Profile.Path == "" {
		cfg.Profile.Path = "profile.yaml"
	}

	cfg.Database = DatabaseConfig{Path: raw.Database.Path}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "jobs.db"
	}
	if raw.Database.Retention != "" {
		d, err := time.ParseDuration(raw.Database.Retention)
		if err != nil {
			return nil, fmt.Errorf("parse database.retention %q: %w", raw.Database.Retention, err)
		}
		cfg.Database.Retention = d
	}

	cfg.Output = OutputConfig{CoverLettersDir: raw.Output.CoverLettersDir}
	if cfg.Output.CoverLettersDir == "" {
		cfg.Output.CoverLettersDir = "output/cover_letters"
	}

	if cfg.Notification.Type == "slack" && cfg.Notification.WebhookURL == "" {
		return nil, fmt.Errorf("notification.webhook_url is required for slack")
	}

	return cfg, nil
}
