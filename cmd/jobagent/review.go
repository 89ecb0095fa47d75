package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ajolex/job-application-agent/internal/review"
	"github.com/ajolex/job-application-agent/internal/store"
)

var reviewLimit int

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Browse matched jobs interactively (TUI)",
	Long:  "Opens a terminal UI listing matched postings with their score breakdowns.",
	RunE:  runReview,
}

func init() {
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 100, "maximum matches to load")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	matches, err := sqlStore.MatchedJobs(0, reviewLimit)
	if err != nil {
		logger.Error("failed to load matches", "error", err)
		os.Exit(1)
	}

	return review.Run(matches)
}
