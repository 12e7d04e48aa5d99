package benchmark

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/marketlens-ai/marketlens/internal/model"
)

// baseMetric is one row of the synthetic seed table: a reference
// distribution for a metric plus its display unit.
type baseMetric struct {
	P10  float64 `yaml:"p10"`
	P25  float64 `yaml:"p25"`
	P50  float64 `yaml:"p50"`
	P75  float64 `yaml:"p75"`
	P90  float64 `yaml:"p90"`
	Mean float64 `yaml:"mean"`
	Unit string  `yaml:"unit"`
}

// baseBenchmarks is the built-in seed table used until real submissions
// accumulate. Values are placeholder policy, scaled per industry below.
var baseBenchmarks = map[string]baseMetric{
	"conversion_rate":           {P10: 0.5, P25: 1.0, P50: 2.0, P75: 3.5, P90: 5.0, Mean: 2.4, Unit: "%"},
	"monthly_traffic":           {P10: 500, P25: 2000, P50: 8000, P75: 25000, P90: 80000, Mean: 23000, Unit: "visits"},
	"email_open_rate":           {P10: 10, P25: 15, P50: 21, P75: 28, P90: 35, Mean: 21.8, Unit: "%"},
	"email_click_rate":          {P10: 1, P25: 1.8, P50: 2.6, P75: 4, P90: 6, Mean: 3.1, Unit: "%"},
	"customer_acquisition_cost": {P10: 20, P25: 45, P50: 90, P75: 180, P90: 350, Mean: 137, Unit: "$"},
	"customer_lifetime_value":   {P10: 150, P25: 400, P50: 900, P75: 2200, P90: 5000, Mean: 1730, Unit: "$"},
	"social_engagement_rate":    {P10: 0.5, P25: 1.2, P50: 2.4, P75: 4.5, P90: 7.5, Mean: 3.2, Unit: "%"},
	"repeat_purchase_rate":      {P10: 8, P25: 15, P50: 24, P75: 35, P90: 48, Mean: 26, Unit: "%"},
	"avg_order_value":           {P10: 25, P25: 45, P50: 75, P75: 130, P90: 220, Mean: 99, Unit: "$"},
	"bounce_rate":               {P10: 30, P25: 40, P50: 50, P75: 62, P90: 75, Mean: 51.4, Unit: "%"},
}

// industryMultiplier scales the base table per industry. Placeholder
// policy pending real aggregated data, hence the Synthetic flag on every
// statistic derived from it.
var industryMultiplier = map[string]float64{
	"technology":    1.3,
	"saas":          1.3,
	"finance":       1.2,
	"ecommerce":     1.1,
	"media":         1.1,
	"marketing":     1.0,
	"healthcare":    0.95,
	"retail":        0.9,
	"hospitality":   0.9,
	"education":     0.85,
	"manufacturing": 0.8,
	"construction":  0.8,
}

const defaultMultiplier = 1.0

// syntheticStatistics builds placeholder statistics for a metric by
// scaling the seed distribution with the industry coefficient. Returns
// false for metrics absent from the seed table. SampleSize stays 0 and
// Synthetic is set so consumers can tell these apart from computed
// benchmarks.
func syntheticStatistics(metric, industry string) (model.BenchmarkStatistics, bool) {
	base, ok := baseBenchmarks[metric]
	if !ok {
		return model.BenchmarkStatistics{}, false
	}

	m := defaultMultiplier
	if v, ok := industryMultiplier[strings.ToLower(strings.TrimSpace(industry))]; ok {
		m = v
	}

	return model.BenchmarkStatistics{
		P10:       base.P10 * m,
		P25:       base.P25 * m,
		P50:       base.P50 * m,
		P75:       base.P75 * m,
		P90:       base.P90 * m,
		Mean:      base.Mean * m,
		Synthetic: true,
	}, true
}

// metricUnit returns the display unit for a seed metric, empty for
// unknown metrics.
func metricUnit(metric string) string {
	return baseBenchmarks[metric].Unit
}

var titleCaser = cases.Title(language.English)

// displayName renders a metric key for human-readable insight text,
// e.g. "conversion_rate" becomes "Conversion Rate".
func displayName(metric string) string {
	return titleCaser.String(strings.ReplaceAll(metric, "_", " "))
}

type seedFile struct {
	Metrics map[string]baseMetric `yaml:"metrics"`
}

// LoadSeed replaces the built-in seed table with one read from a YAML
// file. Used by deployments that maintain their own reference data.
func LoadSeed(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "benchmark: read seed file %s", path)
	}

	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return eris.Wrapf(err, "benchmark: parse seed file %s", path)
	}
	if len(f.Metrics) == 0 {
		return eris.Errorf("benchmark: seed file %s defines no metrics", path)
	}

	baseBenchmarks = f.Metrics
	return nil
}
