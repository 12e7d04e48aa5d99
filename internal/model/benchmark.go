package model

import "time"

// BenchmarkStatistics is the percentile table for one
// (industry, business stage, metric) combination.
//
// Invariant: P10 <= P25 <= P50 <= P75 <= P90.
type BenchmarkStatistics struct {
	P10        float64 `json:"p10"`
	P25        float64 `json:"p25"`
	P50        float64 `json:"p50"`
	P75        float64 `json:"p75"`
	P90        float64 `json:"p90"`
	Mean       float64 `json:"mean"`
	SampleSize int     `json:"sample_size"`

	// Synthetic marks statistics derived from the static industry-multiplier
	// defaults rather than real aggregated submissions.
	Synthetic bool `json:"synthetic"`
}

// PerformanceTier buckets a percentile rank.
type PerformanceTier string

const (
	TierTop10        PerformanceTier = "top_10"
	TierTop25        PerformanceTier = "top_25"
	TierAboveAverage PerformanceTier = "above_average"
	TierAverage      PerformanceTier = "average"
	TierBelowAverage PerformanceTier = "below_average"
)

// MetricComparison positions one metric value against its benchmark.
type MetricComparison struct {
	Metric      string              `json:"metric"`
	YourValue   float64             `json:"your_value"`
	Benchmarks  BenchmarkStatistics `json:"benchmarks"`
	Percentile  float64             `json:"percentile"`
	Performance PerformanceTier     `json:"performance"`
	Gap         float64             `json:"gap"`
	Insight     string              `json:"insight,omitempty"`
}

// BenchmarkComparison is the full result of comparing a business's metrics
// against its industry/stage peer distribution.
type BenchmarkComparison struct {
	BusinessID       string             `json:"business_id"`
	Industry         string             `json:"industry"`
	Stage            string             `json:"stage"`
	Metrics          []MetricComparison `json:"metrics"`
	OverallScore     float64            `json:"overall_score"`
	Strengths        []string           `json:"strengths"`
	ImprovementAreas []string           `json:"improvement_areas"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// BenchmarkInsight is a prioritized recommendation for one weak metric.
type BenchmarkInsight struct {
	Metric     string  `json:"metric"`
	Percentile float64 `json:"percentile"`
	Action     string  `json:"action"`
	Priority   string  `json:"priority"`
	Impact     string  `json:"impact"`
}

// AnonymousSubmission is one anonymized metrics submission used to
// recompute real benchmark statistics.
type AnonymousSubmission struct {
	ID          string             `json:"id"`
	Industry    string             `json:"industry"`
	Stage       string             `json:"stage"`
	Metrics     map[string]float64 `json:"metrics"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

// SubmissionGroup identifies an (industry, stage) cohort and its sample size.
type SubmissionGroup struct {
	Industry string `json:"industry"`
	Stage    string `json:"stage"`
	Count    int    `json:"count"`
}
