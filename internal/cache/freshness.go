// Package cache implements the adaptive analysis cache: freshness scoring,
// the intelligent get/set surface, and the background refresh queue.
package cache

import (
	"math"
	"time"

	"github.com/marketlens-ai/marketlens/internal/config"
	"github.com/marketlens-ai/marketlens/internal/model"
)

// Policy constants. Config may override; these are the documented defaults.
const (
	defaultFreshnessThreshold = 0.7
	defaultStaleThreshold     = 0.3
	defaultTTLHours           = 72

	// activityCap is the competitor event count at which the competitor
	// factor bottoms out.
	activityCap = 10
)

var defaultTTLs = map[string]float64{
	string(model.AnalysisStrategic):   168,
	string(model.AnalysisMarketing):   72,
	string(model.AnalysisCompetitive): 48,
	string(model.AnalysisQuick):       24,
}

// Scorer computes composite freshness scores. It is a pure function over
// ScoreInputs; all I/O (fingerprinting, event counts) happens in the caller.
type Scorer struct {
	ageWeight        float64
	dataWeight       float64
	competitorWeight float64
	industryWeight   float64
	accessWeight     float64

	freshnessThreshold float64
	staleThreshold     float64

	ttlHours   map[string]float64
	defaultTTL float64
}

// NewScorer builds a Scorer from config. Zero-valued fields fall back to
// the default policy constants.
func NewScorer(cfg config.CacheConfig) *Scorer {
	s := &Scorer{
		ageWeight:          cfg.AgeWeight,
		dataWeight:         cfg.DataWeight,
		competitorWeight:   cfg.CompetitorWeight,
		industryWeight:     cfg.IndustryWeight,
		accessWeight:       cfg.AccessWeight,
		freshnessThreshold: cfg.FreshnessThreshold,
		staleThreshold:     cfg.StaleThreshold,
		ttlHours:           cfg.TTLHours,
		defaultTTL:         cfg.DefaultTTLHours,
	}
	if s.ageWeight+s.dataWeight+s.competitorWeight+s.industryWeight+s.accessWeight == 0 {
		s.ageWeight, s.dataWeight, s.competitorWeight, s.industryWeight, s.accessWeight = 0.30, 0.25, 0.20, 0.15, 0.10
	}
	if s.freshnessThreshold == 0 {
		s.freshnessThreshold = defaultFreshnessThreshold
	}
	if s.staleThreshold == 0 {
		s.staleThreshold = defaultStaleThreshold
	}
	if len(s.ttlHours) == 0 {
		s.ttlHours = defaultTTLs
	}
	if s.defaultTTL == 0 {
		s.defaultTTL = defaultTTLHours
	}
	return s
}

// ScoreInputs carries everything the scorer needs for one entry.
type ScoreInputs struct {
	Entry *model.CacheEntry

	// DataChanged is true when the current source-data fingerprint differs
	// from the one stored with the entry, or when the stored hash is missing.
	DataChanged bool

	// ActivityCount is the number of competitor events detected since the
	// entry was created.
	ActivityCount int

	// Volatility is the industry volatility coefficient in [0, 1].
	Volatility float64

	Now time.Time
}

// Score computes the composite freshness score and its recommendation.
func (s *Scorer) Score(in ScoreInputs) model.FreshnessScore {
	ageHours := in.Entry.AgeHours(in.Now)

	ageScore := math.Max(0, 1-ageHours/s.ttlFor(in.Entry.AnalysisType))

	dataScore := 1.0
	if in.DataChanged {
		dataScore = 0
	}

	competitorScore := math.Max(0, 1-math.Min(1, float64(in.ActivityCount)/activityCap))
	industryScore := math.Max(0, 1-in.Volatility)

	// Entries accessed often relative to their age decay slower.
	accessScore := math.Min(1, (float64(in.Entry.AccessCount)/math.Max(1, ageHours))/10)

	score := s.ageWeight*ageScore +
		s.dataWeight*dataScore +
		s.competitorWeight*competitorScore +
		s.industryWeight*industryScore +
		s.accessWeight*accessScore

	return model.FreshnessScore{
		Score: score,
		Factors: model.FreshnessFactors{
			Age:                 ageScore,
			BusinessDataChanged: in.DataChanged,
			CompetitorActivity:  competitorScore,
			IndustryVolatility:  industryScore,
			AccessFrequency:     accessScore,
		},
		ShouldRefresh:  score < s.freshnessThreshold,
		Recommendation: s.recommend(score),
	}
}

func (s *Scorer) recommend(score float64) model.Recommendation {
	switch {
	case score >= s.freshnessThreshold:
		return model.UseCached
	case score >= s.staleThreshold:
		return model.RefreshBackground
	default:
		return model.RefreshImmediate
	}
}

func (s *Scorer) ttlFor(analysisType model.AnalysisType) float64 {
	if ttl, ok := s.ttlHours[string(analysisType)]; ok && ttl > 0 {
		return ttl
	}
	return s.defaultTTL
}
