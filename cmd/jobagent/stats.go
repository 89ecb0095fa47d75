package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ajolex/job-application-agent/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store statistics",
	Long:  "Shows posting counts per source, processed dispositions, and score cache totals.",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
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

	st, err := sqlStore.Stats()
	if err != nil {
		logger.Error("failed to compute stats", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Jobs: %d\n", st.TotalJobs)
	for _, src := range sortedKeys(st.JobsBySource) {
		fmt.Printf("  %-20s %d\n", src, st.JobsBySource[src])
	}
	fmt.Printf("Processed: %d\n", st.Processed)
	for _, d := range sortedKeys(st.ByDisposition) {
		fmt.Printf("  %-30s %d\n", d, st.ByDisposition[d])
	}
	fmt.Printf("Matched: %d\n", st.Matched)
	fmt.Printf("Cached scores: %d (avg overall %.1f)\n", st.CachedScores, st.AvgScore)
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
