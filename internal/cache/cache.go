package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/marketlens-ai/marketlens/internal/config"
	"github.com/marketlens-ai/marketlens/internal/fingerprint"
	"github.com/marketlens-ai/marketlens/internal/model"
	"github.com/marketlens-ai/marketlens/internal/signals"
	"github.com/marketlens-ai/marketlens/internal/store"
)

// DefaultCleanupMaxAgeHours is the cutoff used when Cleanup is called
// with a non-positive max age.
const DefaultCleanupMaxAgeHours = 720

// IntelligentCache is the freshness-aware analysis cache.
//
// Caching is never a hard dependency for availability: every method
// absorbs internal errors and degrades to a safe default (miss, no-op,
// zero stats) rather than failing the caller.
type IntelligentCache struct {
	store        store.Store
	fingerprints fingerprint.Provider
	signals      signals.Provider
	scorer       *Scorer
	refresh      Enqueuer

	fingerprintTimeout time.Duration
	cleanupMaxAge      time.Duration

	now func() time.Time
}

// Enqueuer hands a stale entry to the background refresh pipeline.
// Scheduling is advisory; the cache's responsibility ends at deciding
// that a refresh should happen.
type Enqueuer interface {
	Enqueue(key string, entry model.CacheEntry, cctx model.CacheContext)
}

// New creates an IntelligentCache. refresh may be nil, in which case
// refresh_background verdicts still serve cached data but schedule nothing.
func New(cfg config.CacheConfig, s store.Store, fp fingerprint.Provider, sig signals.Provider, refresh Enqueuer) *IntelligentCache {
	fingerprintTimeout := time.Duration(cfg.FingerprintTimeoutSecs) * time.Second
	if fingerprintTimeout <= 0 {
		fingerprintTimeout = 2 * time.Second
	}
	cleanupMaxAge := time.Duration(cfg.CleanupMaxAgeHours) * time.Hour
	if cleanupMaxAge <= 0 {
		cleanupMaxAge = DefaultCleanupMaxAgeHours * time.Hour
	}

	return &IntelligentCache{
		store:              s,
		fingerprints:       fp,
		signals:            sig,
		scorer:             NewScorer(cfg),
		refresh:            refresh,
		fingerprintTimeout: fingerprintTimeout,
		cleanupMaxAge:      cleanupMaxAge,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// Get looks up a cached analysis and judges its freshness.
//
// With ForceRefresh set, the lookup is bypassed and a miss is returned.
// On a hit, the verdict decides the outcome: use_cached and
// refresh_background both serve the cached data (the latter also
// schedules an async recompute); refresh_immediate reports a miss with
// the freshness attached so the caller recomputes synchronously.
func (c *IntelligentCache) Get(ctx context.Context, key string, cctx model.CacheContext) model.CacheResult {
	if cctx.ForceRefresh {
		return model.CacheResult{}
	}

	entry, err := c.store.GetEntry(ctx, key)
	if err != nil {
		zap.L().Warn("cache: lookup failed, treating as miss", zap.String("key", key), zap.Error(err))
		return model.CacheResult{}
	}
	if entry == nil {
		return model.CacheResult{}
	}

	now := c.now()

	// Best-effort access bump. A failed stat update must not fail the read.
	if err := c.store.TouchEntry(ctx, key, now); err != nil {
		zap.L().Warn("cache: access stat update failed", zap.String("key", key), zap.Error(err))
	}

	score := c.score(ctx, entry, cctx, now)

	switch score.Recommendation {
	case model.RefreshImmediate:
		return model.CacheResult{Freshness: &score}
	case model.RefreshBackground:
		if c.refresh != nil {
			c.refresh.Enqueue(key, *entry, cctx)
		}
	}
	return model.CacheResult{Data: entry.Data, Freshness: &score, FromCache: true}
}

// score gathers the scoring inputs and runs the scorer. Every input read
// is best-effort; failures degrade to the conservative side.
func (c *IntelligentCache) score(ctx context.Context, entry *model.CacheEntry, cctx model.CacheContext, now time.Time) model.FreshnessScore {
	businessID := cctx.BusinessID
	if businessID == "" {
		businessID = entry.BusinessID
	}

	activityCount := 0
	if count, err := c.signals.CompetitorEvents(ctx, businessID, entry.CreatedAt); err != nil {
		zap.L().Warn("cache: competitor signal unavailable", zap.String("business_id", businessID), zap.Error(err))
	} else {
		activityCount = count
	}

	industry := cctx.Industry
	if industry == "" {
		industry = entry.Metadata.Industry
	}

	return c.scorer.Score(ScoreInputs{
		Entry:         entry,
		DataChanged:   c.dataChanged(ctx, businessID, entry),
		ActivityCount: activityCount,
		Volatility:    c.signals.Volatility(industry),
		Now:           now,
	})
}

// dataChanged compares the current source-data fingerprint against the one
// stored with the entry. The check is bounded so a slow source-data read
// cannot block the hit path. A missing stored hash or a failed check is
// treated as changed.
func (c *IntelligentCache) dataChanged(ctx context.Context, businessID string, entry *model.CacheEntry) bool {
	if entry.Metadata.BusinessDataHash == "" {
		return true
	}

	fpCtx, cancel := context.WithTimeout(ctx, c.fingerprintTimeout)
	defer cancel()

	current, err := c.fingerprints.Fingerprint(fpCtx, businessID)
	if err != nil {
		zap.L().Warn("cache: fingerprint check failed, assuming data changed",
			zap.String("business_id", businessID), zap.Error(err))
		return true
	}
	return current != entry.Metadata.BusinessDataHash
}

// Set persists an analysis payload, fingerprinting the business's current
// source data so later reads can detect drift. Upsert semantics on key;
// createdAt and lastAccessedAt reset to now and accessCount to 1.
// Write failures are logged, never surfaced: a cache-write failure must
// not break the caller's response path.
func (c *IntelligentCache) Set(ctx context.Context, key string, data json.RawMessage, cctx model.CacheContext, analysisType model.AnalysisType, meta *model.CacheMetadata) {
	now := c.now()

	metadata := model.CacheMetadata{}
	if meta != nil {
		metadata = *meta
	}
	if metadata.Industry == "" {
		metadata.Industry = cctx.Industry
	}

	fpCtx, cancel := context.WithTimeout(ctx, c.fingerprintTimeout)
	defer cancel()
	if hash, err := c.fingerprints.Fingerprint(fpCtx, cctx.BusinessID); err != nil {
		zap.L().Warn("cache: fingerprint at write failed",
			zap.String("business_id", cctx.BusinessID), zap.Error(err))
	} else {
		metadata.BusinessDataHash = hash
	}

	entry := model.CacheEntry{
		Key:            key,
		Data:           data,
		BusinessID:     cctx.BusinessID,
		AnalysisType:   analysisType,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
		Metadata:       metadata,
	}
	if err := c.store.UpsertEntry(ctx, entry); err != nil {
		zap.L().Error("cache: write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops all entries for a business, optionally narrowed to one
// analysis type (empty = all types).
func (c *IntelligentCache) Invalidate(ctx context.Context, businessID string, analysisType model.AnalysisType) {
	n, err := c.store.DeleteEntries(ctx, businessID, analysisType)
	if err != nil {
		zap.L().Error("cache: invalidate failed", zap.String("business_id", businessID), zap.Error(err))
		return
	}
	zap.L().Info("cache: invalidated entries",
		zap.String("business_id", businessID),
		zap.String("analysis_type", string(analysisType)),
		zap.Int("deleted", n))
}

// Cleanup deletes entries older than maxAgeHours across all businesses and
// returns the count deleted. Non-positive maxAgeHours uses the configured
// default cutoff.
func (c *IntelligentCache) Cleanup(ctx context.Context, maxAgeHours int) int {
	maxAge := time.Duration(maxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = c.cleanupMaxAge
	}

	n, err := c.store.DeleteOlderThan(ctx, c.now().Add(-maxAge))
	if err != nil {
		zap.L().Error("cache: cleanup failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		zap.L().Info("cache: cleanup removed entries", zap.Int("deleted", n))
	}
	return n
}

// Stats summarizes the cache contents, optionally scoped to one business.
// Returns zero stats on error.
func (c *IntelligentCache) Stats(ctx context.Context, businessID string) *model.CacheStats {
	stats, err := c.store.CacheStats(ctx, businessID, c.now())
	if err != nil {
		zap.L().Warn("cache: stats unavailable", zap.Error(err))
		return &model.CacheStats{ByType: map[string]int{}}
	}
	return stats
}
