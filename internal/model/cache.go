// Package model defines the shared domain types for the analysis cache
// and benchmark engine.
package model

import (
	"encoding/json"
	"time"
)

// AnalysisType identifies the kind of analysis a cache entry holds.
// The type determines the TTL policy applied during freshness scoring.
type AnalysisType string

const (
	AnalysisStrategic   AnalysisType = "strategic"
	AnalysisMarketing   AnalysisType = "marketing"
	AnalysisCompetitive AnalysisType = "competitive"
	AnalysisQuick       AnalysisType = "quick"
)

// CacheMetadata holds scoring context captured at write time.
type CacheMetadata struct {
	// BusinessDataHash is the fingerprint of the business's source data
	// when the analysis was computed. An empty hash is treated as
	// "data changed" during scoring.
	BusinessDataHash string `json:"business_data_hash,omitempty"`
	Industry         string `json:"industry,omitempty"`
	CompetitorCount  int    `json:"competitor_count,omitempty"`
}

// CacheEntry is a persisted analysis artifact keyed by a caller-supplied key.
type CacheEntry struct {
	Key            string          `json:"key"`
	Data           json.RawMessage `json:"data"`
	BusinessID     string          `json:"business_id"`
	AnalysisType   AnalysisType    `json:"analysis_type"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	AccessCount    int             `json:"access_count"`
	Metadata       CacheMetadata   `json:"metadata"`
}

// AgeHours returns the entry's age relative to now, in hours.
func (e *CacheEntry) AgeHours(now time.Time) float64 {
	return now.Sub(e.CreatedAt).Hours()
}

// CacheContext carries per-request context into cache operations.
type CacheContext struct {
	BusinessID   string
	Industry     string
	ForceRefresh bool
}

// Recommendation is the freshness verdict for a cache hit.
type Recommendation string

const (
	// UseCached means the entry is fresh enough to serve as-is.
	UseCached Recommendation = "use_cached"
	// RefreshBackground means serve the stale entry and recompute asynchronously.
	RefreshBackground Recommendation = "refresh_background"
	// RefreshImmediate means the entry is too stale; treat as a miss.
	RefreshImmediate Recommendation = "refresh_immediate"
)

// FreshnessFactors holds the normalized sub-scores behind a composite score.
type FreshnessFactors struct {
	Age                 float64 `json:"age"`
	BusinessDataChanged bool    `json:"business_data_changed"`
	CompetitorActivity  float64 `json:"competitor_activity"`
	IndustryVolatility  float64 `json:"industry_volatility"`
	AccessFrequency     float64 `json:"access_frequency"`
}

// FreshnessScore is the composite freshness judgment for one cache entry.
type FreshnessScore struct {
	Score          float64          `json:"score"`
	Factors        FreshnessFactors `json:"factors"`
	ShouldRefresh  bool             `json:"should_refresh"`
	Recommendation Recommendation   `json:"recommendation"`
}

// CacheResult is what IntelligentCache.Get returns to callers.
type CacheResult struct {
	Data      json.RawMessage `json:"data"`
	Freshness *FreshnessScore `json:"freshness,omitempty"`
	FromCache bool            `json:"from_cache"`
}

// CacheStats summarizes the cache contents, optionally scoped to one business.
//
// HitRate is totalAccesses/totalEntries, a popularity proxy rather than a true
// hit/miss ratio. True miss counts are not tracked.
type CacheStats struct {
	TotalEntries int            `json:"total_entries"`
	HitRate      float64        `json:"hit_rate"`
	AvgAgeHours  float64        `json:"avg_age_hours"`
	ByType       map[string]int `json:"by_type"`
}
