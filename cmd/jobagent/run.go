package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajolex/job-application-agent/internal/adapter"
	"github.com/ajolex/job-application-agent/internal/config"
	"github.com/ajolex/job-application-agent/internal/fetch"
	"github.com/ajolex/job-application-agent/internal/generator"
	"github.com/ajolex/job-application-agent/internal/model"
	"github.com/ajolex/job-application-agent/internal/pipeline"
	"github.com/ajolex/job-application-agent/internal/prefilter"
	"github.com/ajolex/job-application-agent/internal/profile"
	"github.com/ajolex/job-application-agent/internal/ratelimit"
	"github.com/ajolex/job-application-agent/internal/retry"
	"github.com/ajolex/job-application-agent/internal/score"
	"github.com/ajolex/job-application-agent/internal/store"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one pipeline run",
	Long:  "Fetch postings from all enabled sources, score new and changed ones, and hand off matches.",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "score but do not mark processed and do not hand off")
	rootCmd.AddCommand(runCmd)
}

func buildAdapters(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) []model.SourceAdapter {
	var adapters []model.SourceAdapter
	for _, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		switch src.Name {
		case "reliefweb":
			adapters = append(adapters, adapter.NewReliefWebAdapter(src.BaseURL, src.MinDelay, src.MaxPages, httpClient, logger))
		case "unjobs":
			adapters = append(adapters, adapter.NewUNJobsAdapter(src.BaseURL, src.MinDelay, src.MaxPages, logger))
		default:
			logger.Warn("unsupported source, skipping", "source", src.Name)
			continue
		}
		logger.Info("registered source", "name", src.Name, "min_delay", src.MinDelay.String(), "max_pages", src.MaxPages)
	}
	return adapters
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"keywords", len(cfg.Keywords),
		"sources", len(cfg.Sources),
		"threshold", cfg.Threshold,
		"model", cfg.Scoring.Model,
	)

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	fetchClient := &http.Client{Timeout: 30 * time.Second}
	scoringClient := &http.Client{Timeout: cfg.Scoring.Timeout}

	adapters := buildAdapters(cfg, fetchClient, logger)
	if len(adapters) == 0 {
		logger.Error("no sources to fetch")
		os.Exit(1)
	}

	policy := retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
	}

	executor := fetch.NewExecutor(ratelimit.NewSourceRateLimiter(), policy, logger)
	engine := score.NewEngine(
		score.NewScoringProvider(cfg.Scoring.BaseURL, cfg.Scoring.APIKey, cfg.Scoring.Model, scoringClient),
		sqlStore, policy, cfg.Scoring.Concurrency, logger,
	)
	letters := generator.NewCoverLetterGenerator(
		score.NewTextProvider(cfg.Scoring.BaseURL, cfg.Scoring.APIKey, cfg.Scoring.Model, scoringClient),
		cfg.Output.CoverLettersDir, logger,
	)

	if dryRun {
		logger.Info("dry-run mode enabled, nothing will be marked processed or handed off")
	}

	orch := pipeline.New(
		adapters,
		executor,
		sqlStore,
		profile.NewFileProvider(cfg.Profile.Path),
		prefilter.New(cfg.Prefilter.ExtraPhrases),
		engine,
		letters,
		setupNotifier(cfg, fetchClient, logger),
		pipeline.Options{
			Keywords:  cfg.Keywords,
			Threshold: cfg.Threshold,
			Retention: cfg.Database.Retention,
			DryRun:    dryRun,
		},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := orch.Run(ctx)
	if err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}

	logger.Info("run finished", "state", summary.State)
	return nil
}
