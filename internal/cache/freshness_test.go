package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marketlens-ai/marketlens/internal/config"
	"github.com/marketlens-ai/marketlens/internal/model"
)

func scoreAt(t *testing.T, s *Scorer, analysisType model.AnalysisType, ageHours float64, in ScoreInputs) model.FreshnessScore {
	t.Helper()
	now := time.Now().UTC()
	entry := in.Entry
	if entry == nil {
		entry = &model.CacheEntry{AccessCount: 1}
	}
	entry.AnalysisType = analysisType
	entry.CreatedAt = now.Add(-time.Duration(ageHours * float64(time.Hour)))
	in.Entry = entry
	in.Now = now
	return s.Score(in)
}

func TestScore_AgeDecayMonotonic(t *testing.T) {
	s := NewScorer(config.CacheConfig{})

	prev := 2.0
	for _, age := range []float64{0, 6, 12, 18, 23} {
		got := scoreAt(t, s, model.AnalysisQuick, age, ScoreInputs{})
		assert.Less(t, got.Factors.Age, prev, "age %v", age)
		assert.Greater(t, got.Factors.Age, 0.0, "age %v", age)
		prev = got.Factors.Age
	}

	// Floor at zero once past the TTL.
	atTTL := scoreAt(t, s, model.AnalysisQuick, 24, ScoreInputs{})
	assert.Zero(t, atTTL.Factors.Age)
	pastTTL := scoreAt(t, s, model.AnalysisQuick, 48, ScoreInputs{})
	assert.Zero(t, pastTTL.Factors.Age)
}

func TestScore_TTLByAnalysisType(t *testing.T) {
	s := NewScorer(config.CacheConfig{})

	// 100 hours in: strategic (TTL 168h) still has age credit, quick (24h)
	// has none, and unknown types use the 72h default.
	strategic := scoreAt(t, s, model.AnalysisStrategic, 100, ScoreInputs{})
	assert.InDelta(t, 1-100.0/168, strategic.Factors.Age, 0.001)

	quick := scoreAt(t, s, model.AnalysisQuick, 100, ScoreInputs{})
	assert.Zero(t, quick.Factors.Age)

	unknown := scoreAt(t, s, model.AnalysisType("forecast"), 36, ScoreInputs{})
	assert.InDelta(t, 0.5, unknown.Factors.Age, 0.001)
}

func TestScore_DataChangedZeroesFactor(t *testing.T) {
	s := NewScorer(config.CacheConfig{})

	unchanged := scoreAt(t, s, model.AnalysisQuick, 1, ScoreInputs{DataChanged: false})
	changed := scoreAt(t, s, model.AnalysisQuick, 1, ScoreInputs{DataChanged: true})

	assert.False(t, unchanged.Factors.BusinessDataChanged)
	assert.True(t, changed.Factors.BusinessDataChanged)
	assert.InDelta(t, 0.25, unchanged.Score-changed.Score, 0.001)
}

func TestScore_CompetitorActivityCap(t *testing.T) {
	s := NewScorer(config.CacheConfig{})

	quiet := scoreAt(t, s, model.AnalysisQuick, 1, ScoreInputs{ActivityCount: 0})
	assert.InDelta(t, 1.0, quiet.Factors.CompetitorActivity, 0.001)

	some := scoreAt(t, s, model.AnalysisQuick, 1, ScoreInputs{ActivityCount: 5})
	assert.InDelta(t, 0.5, some.Factors.CompetitorActivity, 0.001)

	// 10 or more events saturates.
	atCap := scoreAt(t, s, model.AnalysisQuick, 1, ScoreInputs{ActivityCount: 10})
	assert.Zero(t, atCap.Factors.CompetitorActivity)
	overCap := scoreAt(t, s, model.AnalysisQuick, 1, ScoreInputs{ActivityCount: 50})
	assert.Zero(t, overCap.Factors.CompetitorActivity)
}

func TestScore_IndustryVolatility(t *testing.T) {
	s := NewScorer(config.CacheConfig{})

	stable := scoreAt(t, s, model.AnalysisQuick, 1, ScoreInputs{Volatility: 0.4})
	volatile := scoreAt(t, s, model.AnalysisQuick, 1, ScoreInputs{Volatility: 0.9})

	assert.InDelta(t, 0.6, stable.Factors.IndustryVolatility, 0.001)
	assert.InDelta(t, 0.1, volatile.Factors.IndustryVolatility, 0.001)
}

func TestScore_AccessFrequencySlowsDecay(t *testing.T) {
	s := NewScorer(config.CacheConfig{})

	rarely := scoreAt(t, s, model.AnalysisStrategic, 20, ScoreInputs{
		Entry: &model.CacheEntry{AccessCount: 1},
	})
	often := scoreAt(t, s, model.AnalysisStrategic, 20, ScoreInputs{
		Entry: &model.CacheEntry{AccessCount: 500},
	})

	assert.Greater(t, often.Factors.AccessFrequency, rarely.Factors.AccessFrequency)
	assert.Greater(t, often.Score, rarely.Score)
	// The frequency factor is capped at 1.
	assert.InDelta(t, 1.0, often.Factors.AccessFrequency, 0.001)
}

func TestScore_FreshEntryAgeUnderOneHour(t *testing.T) {
	// Age below one hour clamps the frequency denominator at 1 rather
	// than dividing by a near-zero age.
	s := NewScorer(config.CacheConfig{})
	got := scoreAt(t, s, model.AnalysisQuick, 0.01, ScoreInputs{
		Entry: &model.CacheEntry{AccessCount: 3},
	})
	assert.InDelta(t, 0.3, got.Factors.AccessFrequency, 0.001)
}

func TestRecommend_ThresholdPartition(t *testing.T) {
	s := NewScorer(config.CacheConfig{})

	cases := []struct {
		score float64
		want  model.Recommendation
	}{
		{1.0, model.UseCached},
		{0.71, model.UseCached},
		{0.7, model.UseCached}, // closed boundary
		{0.69, model.RefreshBackground},
		{0.5, model.RefreshBackground},
		{0.3, model.RefreshBackground}, // closed boundary
		{0.29, model.RefreshImmediate},
		{0.0, model.RefreshImmediate},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.recommend(tc.score), "score %v", tc.score)
	}
}

func TestScore_ExpiredQuickEntryWithPerfectFactors(t *testing.T) {
	// A 200-hour-old quick entry has zero age credit. With every other
	// factor at its maximum the composite lands exactly on the freshness
	// threshold, which still counts as fresh.
	s := NewScorer(config.CacheConfig{})

	got := scoreAt(t, s, model.AnalysisQuick, 200, ScoreInputs{
		Entry:         &model.CacheEntry{AccessCount: 5000},
		DataChanged:   false,
		ActivityCount: 0,
		Volatility:    0,
	})

	assert.Zero(t, got.Factors.Age)
	assert.InDelta(t, 0.70, got.Score, 0.0001)
	assert.Equal(t, model.UseCached, got.Recommendation)
	assert.False(t, got.ShouldRefresh)
}

func TestScore_ShouldRefreshTracksThreshold(t *testing.T) {
	s := NewScorer(config.CacheConfig{})

	fresh := scoreAt(t, s, model.AnalysisStrategic, 1, ScoreInputs{})
	assert.False(t, fresh.ShouldRefresh)

	stale := scoreAt(t, s, model.AnalysisQuick, 200, ScoreInputs{
		DataChanged:   true,
		ActivityCount: 10,
		Volatility:    0.9,
	})
	assert.True(t, stale.ShouldRefresh)
	assert.Equal(t, model.RefreshImmediate, stale.Recommendation)
}

func TestNewScorer_ConfigOverrides(t *testing.T) {
	s := NewScorer(config.CacheConfig{
		AgeWeight:          1.0,
		FreshnessThreshold: 0.9,
		StaleThreshold:     0.5,
		TTLHours:           map[string]float64{"quick": 10},
		DefaultTTLHours:    20,
	})

	assert.InDelta(t, 10, s.ttlFor(model.AnalysisQuick), 0.001)
	assert.InDelta(t, 20, s.ttlFor(model.AnalysisType("other")), 0.001)

	got := scoreAt(t, s, model.AnalysisQuick, 5, ScoreInputs{})
	assert.InDelta(t, 0.5, got.Score, 0.001)
	assert.Equal(t, model.RefreshBackground, got.Recommendation)
}
