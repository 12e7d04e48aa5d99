package benchmark

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketlens-ai/marketlens/internal/config"
	"github.com/marketlens-ai/marketlens/internal/model"
	"github.com/marketlens-ai/marketlens/internal/store"
)

// IndustryBenchmarks compares business metrics against industry/stage
// peer distributions.
//
// Unlike the cache, benchmark errors propagate: a comparison cannot be
// meaningfully degraded, so failures surface to the caller.
type IndustryBenchmarks struct {
	store store.Store

	minSampleSize     int
	recalcConcurrency int

	now func() time.Time
}

func New(cfg config.BenchmarkConfig, s store.Store) *IndustryBenchmarks {
	minSample := cfg.MinSampleSize
	if minSample <= 0 {
		minSample = 5
	}
	concurrency := cfg.RecalcConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &IndustryBenchmarks{
		store:             s,
		minSampleSize:     minSample,
		recalcConcurrency: concurrency,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// CompareToIndustry positions each provided metric against its stored or
// synthesized benchmark. Metrics with no benchmark at all are skipped with
// a warning. The full comparison is persisted as an audit record.
func (b *IndustryBenchmarks) CompareToIndustry(ctx context.Context, businessID, industry, stage string, metrics map[string]float64) (*model.BenchmarkComparison, error) {
	cmp := &model.BenchmarkComparison{
		BusinessID:       businessID,
		Industry:         industry,
		Stage:            stage,
		Strengths:        []string{},
		ImprovementAreas: []string{},
		GeneratedAt:      b.now(),
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var percentileSum float64
	for _, name := range names {
		value := metrics[name]

		stats, err := b.statsFor(ctx, industry, stage, name)
		if err != nil {
			return nil, err
		}
		if stats == nil {
			zap.L().Warn("benchmark: no benchmark for metric, skipping",
				zap.String("metric", name),
				zap.String("industry", industry),
				zap.String("stage", stage))
			continue
		}

		pct := percentileRank(value, *stats)
		mc := model.MetricComparison{
			Metric:      name,
			YourValue:   value,
			Benchmarks:  *stats,
			Percentile:  pct,
			Performance: performanceTier(pct),
			Gap:         value - stats.P50,
			Insight:     insightText(name, pct, value, *stats),
		}
		cmp.Metrics = append(cmp.Metrics, mc)
		percentileSum += pct

		if pct >= 75 {
			cmp.Strengths = append(cmp.Strengths,
				fmt.Sprintf("%s: %.0fth percentile", displayName(name), pct))
		}
	}

	if len(cmp.Metrics) > 0 {
		cmp.OverallScore = percentileSum / float64(len(cmp.Metrics))
	}
	cmp.ImprovementAreas = improvementAreas(cmp.Metrics)

	if err := b.store.InsertComparison(ctx, *cmp); err != nil {
		return nil, eris.Wrap(err, "benchmark: persist comparison")
	}
	return cmp, nil
}

// statsFor fetches stored statistics, falling back to the synthetic seed
// table. Returns nil when neither source knows the metric.
func (b *IndustryBenchmarks) statsFor(ctx context.Context, industry, stage, metric string) (*model.BenchmarkStatistics, error) {
	stats, err := b.store.GetBenchmark(ctx, industry, stage, metric)
	if err != nil {
		return nil, eris.Wrapf(err, "benchmark: load %s/%s/%s", industry, stage, metric)
	}
	if stats != nil {
		return stats, nil
	}
	if synthetic, ok := syntheticStatistics(metric, industry); ok {
		return &synthetic, nil
	}
	return nil, nil
}

// improvementAreas lists metrics below the median, weakest first, with
// the absolute gap from the median and its unit.
func improvementAreas(metrics []model.MetricComparison) []string {
	var weak []model.MetricComparison
	for _, m := range metrics {
		if m.Percentile < 50 {
			weak = append(weak, m)
		}
	}
	sort.Slice(weak, func(i, j int) bool { return weak[i].Percentile < weak[j].Percentile })

	areas := make([]string, 0, len(weak))
	for _, m := range weak {
		unit := metricUnit(m.Metric)
		if unit != "" {
			unit = " " + unit
		}
		areas = append(areas, fmt.Sprintf("%s: %.1f%s below median",
			displayName(m.Metric), math.Abs(m.Gap), unit))
	}
	return areas
}

func insightText(metric string, pct, value float64, stats model.BenchmarkStatistics) string {
	name := displayName(metric)
	switch {
	case pct >= 90:
		return fmt.Sprintf("%s of %.1f puts you in the top 10%% of your industry.", name, value)
	case pct >= 75:
		return fmt.Sprintf("%s is well above the industry median of %.1f.", name, stats.P50)
	case pct >= 50:
		return fmt.Sprintf("%s is above the industry median of %.1f.", name, stats.P50)
	case pct >= 25:
		return fmt.Sprintf("%s trails the industry median of %.1f.", name, stats.P50)
	default:
		return fmt.Sprintf("%s is in the bottom quartile; the industry median is %.1f.", name, stats.P50)
	}
}

// recommendationActions maps weak metrics to remediation guidance.
var recommendationActions = map[string]model.BenchmarkInsight{
	"conversion_rate": {
		Action:   "Run A/B tests on landing pages and simplify the checkout or signup flow.",
		Priority: "high",
		Impact:   "Directly lifts revenue from existing traffic.",
	},
	"monthly_traffic": {
		Action:   "Invest in SEO content and targeted paid acquisition for your strongest segments.",
		Priority: "high",
		Impact:   "Grows the top of the funnel feeding every downstream metric.",
	},
	"email_open_rate": {
		Action:   "Test subject lines and sender names; prune unengaged subscribers.",
		Priority: "medium",
		Impact:   "Raises reach of every campaign without new list growth.",
	},
	"email_click_rate": {
		Action:   "Tighten email copy to a single clear call to action per message.",
		Priority: "medium",
		Impact:   "Converts existing opens into site visits.",
	},
	"customer_acquisition_cost": {
		Action:   "Shift budget toward channels with proven payback and improve targeting.",
		Priority: "high",
		Impact:   "Lowers the cost of every new customer.",
	},
	"customer_lifetime_value": {
		Action:   "Introduce retention campaigns and upsell paths for existing customers.",
		Priority: "medium",
		Impact:   "Raises revenue per customer without added acquisition spend.",
	},
	"social_engagement_rate": {
		Action:   "Post consistently in formats your audience already engages with.",
		Priority: "low",
		Impact:   "Builds organic reach and brand recall over time.",
	},
	"repeat_purchase_rate": {
		Action:   "Add post-purchase email flows and a simple loyalty incentive.",
		Priority: "medium",
		Impact:   "Repeat buyers compound revenue at near-zero acquisition cost.",
	},
	"avg_order_value": {
		Action:   "Add bundles, volume discounts, or cross-sells at checkout.",
		Priority: "medium",
		Impact:   "Raises revenue per transaction immediately.",
	},
	"bounce_rate": {
		Action:   "Improve page load speed and match landing page copy to ad intent.",
		Priority: "medium",
		Impact:   "Keeps paid and organic visitors in the funnel.",
	},
}

var genericAction = model.BenchmarkInsight{
	Action:   "Benchmark this metric against direct competitors and set a quarterly improvement target.",
	Priority: "medium",
	Impact:   "Closes the gap to the industry median.",
}

// GenerateRecommendations returns prioritized guidance for the three
// lowest-percentile metrics in a comparison.
func (b *IndustryBenchmarks) GenerateRecommendations(cmp *model.BenchmarkComparison) []model.BenchmarkInsight {
	ranked := append([]model.MetricComparison(nil), cmp.Metrics...)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Percentile < ranked[j].Percentile })

	if len(ranked) > 3 {
		ranked = ranked[:3]
	}

	insights := make([]model.BenchmarkInsight, 0, len(ranked))
	for _, m := range ranked {
		insight, ok := recommendationActions[m.Metric]
		if !ok {
			insight = genericAction
		}
		insight.Metric = m.Metric
		insight.Percentile = m.Percentile
		insights = append(insights, insight)
	}
	return insights
}

// SubmitMetricsAnonymously appends a submission to the anonymized pool
// that feeds benchmark recalculation. No business identifier is stored.
func (b *IndustryBenchmarks) SubmitMetricsAnonymously(ctx context.Context, industry, stage string, metrics map[string]float64) error {
	if len(metrics) == 0 {
		return eris.New("benchmark: submission has no metrics")
	}
	err := b.store.InsertSubmission(ctx, model.AnonymousSubmission{
		Industry:    industry,
		Stage:       stage,
		Metrics:     metrics,
		SubmittedAt: b.now(),
	})
	return eris.Wrap(err, "benchmark: insert submission")
}

// RecalculateBenchmarks recomputes statistics for every (industry, stage)
// cohort with enough submissions, replacing synthetic defaults with real
// percentiles. Cohorts below the sample-size gate are skipped.
func (b *IndustryBenchmarks) RecalculateBenchmarks(ctx context.Context) error {
	groups, err := b.store.ListSubmissionGroups(ctx)
	if err != nil {
		return eris.Wrap(err, "benchmark: list submission groups")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.recalcConcurrency)

	for _, group := range groups {
		if group.Count < b.minSampleSize {
			zap.L().Debug("benchmark: cohort below sample gate, keeping existing statistics",
				zap.String("industry", group.Industry),
				zap.String("stage", group.Stage),
				zap.Int("count", group.Count))
			continue
		}
		group := group
		g.Go(func() error {
			return b.recalculateGroup(ctx, group.Industry, group.Stage)
		})
	}
	return g.Wait()
}

func (b *IndustryBenchmarks) recalculateGroup(ctx context.Context, industry, stage string) error {
	subs, err := b.store.ListSubmissions(ctx, industry, stage)
	if err != nil {
		return eris.Wrapf(err, "benchmark: list submissions %s/%s", industry, stage)
	}

	valuesByMetric := map[string][]float64{}
	for _, sub := range subs {
		for metric, value := range sub.Metrics {
			valuesByMetric[metric] = append(valuesByMetric[metric], value)
		}
	}

	stats := make(map[string]model.BenchmarkStatistics, len(valuesByMetric))
	for metric, values := range valuesByMetric {
		if len(values) < b.minSampleSize {
			continue
		}
		stats[metric] = computeStatistics(values)
	}
	if len(stats) == 0 {
		return nil
	}

	if err := b.store.UpsertBenchmarks(ctx, industry, stage, stats); err != nil {
		return eris.Wrapf(err, "benchmark: upsert %s/%s", industry, stage)
	}
	zap.L().Info("benchmark: recalculated cohort statistics",
		zap.String("industry", industry),
		zap.String("stage", stage),
		zap.Int("metrics", len(stats)))
	return nil
}
