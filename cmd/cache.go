package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlens-ai/marketlens/internal/cache"
	"github.com/marketlens-ai/marketlens/internal/fingerprint"
	"github.com/marketlens-ai/marketlens/internal/model"
	"github.com/marketlens-ai/marketlens/internal/signals"
)

var (
	cacheBusinessID   string
	cacheAnalysisType string
	cacheMaxAgeHours  int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the analysis cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache statistics as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore(s)

		c := cache.New(cfg.Cache, s, fingerprint.NewStoreProvider(s), signals.NewStoreSignals(s), nil)
		stats := c.Stats(ctx, cacheBusinessID)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Invalidate cached analyses for a business",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheBusinessID == "" {
			return eris.New("--business is required")
		}
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore(s)

		c := cache.New(cfg.Cache, s, fingerprint.NewStoreProvider(s), signals.NewStoreSignals(s), nil)
		c.Invalidate(ctx, cacheBusinessID, model.AnalysisType(cacheAnalysisType))

		zap.L().Info("cache invalidated",
			zap.String("business_id", cacheBusinessID),
			zap.String("analysis_type", cacheAnalysisType))
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete cache entries older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore(s)

		c := cache.New(cfg.Cache, s, fingerprint.NewStoreProvider(s), signals.NewStoreSignals(s), nil)
		deleted := c.Cleanup(ctx, cacheMaxAgeHours)

		zap.L().Info("cache cleanup finished", zap.Int("deleted", deleted))
		return nil
	},
}

func init() {
	cacheStatsCmd.Flags().StringVar(&cacheBusinessID, "business", "", "scope stats to one business")
	cacheInvalidateCmd.Flags().StringVar(&cacheBusinessID, "business", "", "business to invalidate (required)")
	cacheInvalidateCmd.Flags().StringVar(&cacheAnalysisType, "type", "", "invalidate only this analysis type")
	cacheCleanupCmd.Flags().IntVar(&cacheMaxAgeHours, "max-age-hours", 0, "delete entries older than this (default from config)")

	cacheCmd.AddCommand(cacheStatsCmd, cacheInvalidateCmd, cacheCleanupCmd)
	rootCmd.AddCommand(cacheCmd)
}
