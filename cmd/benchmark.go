package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlens-ai/marketlens/internal/benchmark"
)

var (
	benchBusinessID string
	benchIndustry   string
	benchStage      string
	benchMetrics    []string
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Compare metrics against industry benchmarks",
}

var benchmarkCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare business metrics to the industry distribution",
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchIndustry == "" {
			return eris.New("--industry is required")
		}
		metrics, err := parseMetricFlags(benchMetrics)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore(s)
		if err := s.Migrate(ctx); err != nil {
			return err
		}

		engine := benchmark.New(cfg.Benchmark, s)
		cmp, err := engine.CompareToIndustry(ctx, benchBusinessID, benchIndustry, benchStage, metrics)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"comparison":      cmp,
			"recommendations": engine.GenerateRecommendations(cmp),
		})
	},
}

var benchmarkSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit anonymized metrics to the benchmark pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchIndustry == "" {
			return eris.New("--industry is required")
		}
		metrics, err := parseMetricFlags(benchMetrics)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore(s)
		if err := s.Migrate(ctx); err != nil {
			return err
		}

		engine := benchmark.New(cfg.Benchmark, s)
		if err := engine.SubmitMetricsAnonymously(ctx, benchIndustry, benchStage, metrics); err != nil {
			return err
		}

		zap.L().Info("metrics submitted",
			zap.String("industry", benchIndustry),
			zap.Int("metric_count", len(metrics)))
		return nil
	},
}

var benchmarkRecalculateCmd = &cobra.Command{
	Use:   "recalculate",
	Short: "Recompute benchmark distributions from submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore(s)
		if err := s.Migrate(ctx); err != nil {
			return err
		}

		return benchmark.New(cfg.Benchmark, s).RecalculateBenchmarks(ctx)
	},
}

// parseMetricFlags turns repeated name=value flags into a metric map.
func parseMetricFlags(raw []string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, eris.New("at least one --metric name=value is required")
	}

	metrics := make(map[string]float64, len(raw))
	for _, pair := range raw {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, eris.Errorf("invalid metric %q, expected name=value", pair)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid metric value %q", pair)
		}
		metrics[name] = v
	}
	return metrics, nil
}

func init() {
	for _, c := range []*cobra.Command{benchmarkCompareCmd, benchmarkSubmitCmd} {
		c.Flags().StringVar(&benchIndustry, "industry", "", "industry slug (required)")
		c.Flags().StringVar(&benchStage, "stage", "", "business stage")
		c.Flags().StringArrayVar(&benchMetrics, "metric", nil, "metric as name=value (repeatable)")
	}
	benchmarkCompareCmd.Flags().StringVar(&benchBusinessID, "business", "", "business id for the audit record")

	benchmarkCmd.AddCommand(benchmarkCompareCmd, benchmarkSubmitCmd, benchmarkRecalculateCmd)
	rootCmd.AddCommand(benchmarkCmd)
}
