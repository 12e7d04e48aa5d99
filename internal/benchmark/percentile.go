// Package benchmark positions business metrics against industry peer
// distributions and turns the gaps into prioritized recommendations.
package benchmark

import (
	"math"
	"sort"

	"github.com/marketlens-ai/marketlens/internal/model"
)

// percentileRank places a value on the 0-100 scale by piecewise-linear
// interpolation between the five known percentile points. Values beyond
// p90 earn up to 10 extra points proportional to how far past p90 they
// are, capped at 100.
func percentileRank(value float64, stats model.BenchmarkStatistics) float64 {
	switch {
	case value <= stats.P10:
		return 10
	case value <= stats.P25:
		return 10 + segment(value, stats.P10, stats.P25)*15
	case value <= stats.P50:
		return 25 + segment(value, stats.P25, stats.P50)*25
	case value <= stats.P75:
		return 50 + segment(value, stats.P50, stats.P75)*25
	case value <= stats.P90:
		return 75 + segment(value, stats.P75, stats.P90)*15
	default:
		if stats.P90 == 0 {
			return 100
		}
		return 90 + math.Min(10, (value-stats.P90)/stats.P90*10)
	}
}

// segment returns the value's fractional position within [lo, hi].
func segment(value, lo, hi float64) float64 {
	if hi <= lo {
		return 1
	}
	return (value - lo) / (hi - lo)
}

func performanceTier(percentile float64) model.PerformanceTier {
	switch {
	case percentile >= 90:
		return model.TierTop10
	case percentile >= 75:
		return model.TierTop25
	case percentile >= 50:
		return model.TierAboveAverage
	case percentile >= 25:
		return model.TierAverage
	default:
		return model.TierBelowAverage
	}
}

// computeStatistics derives a percentile table from raw submitted values
// using rank-based percentiles: sort ascending, index = floor(p * n).
func computeStatistics(values []float64) model.BenchmarkStatistics {
	n := len(values)
	if n == 0 {
		return model.BenchmarkStatistics{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	at := func(p float64) float64 {
		idx := int(math.Floor(p * float64(n)))
		if idx >= n {
			idx = n - 1
		}
		return sorted[idx]
	}

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return model.BenchmarkStatistics{
		P10:        at(0.10),
		P25:        at(0.25),
		P50:        at(0.50),
		P75:        at(0.75),
		P90:        at(0.90),
		Mean:       sum / float64(n),
		SampleSize: n,
	}
}
