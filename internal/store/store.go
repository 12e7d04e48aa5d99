package store

import (
	"context"
	"time"

	"github.com/marketlens-ai/marketlens/internal/model"
)

// Store defines the persistence interface for the analysis cache and
// benchmark engine.
//
// Read methods return (nil, nil) on not-found; callers treat that as a miss.
type Store interface {
	// Analysis cache
	GetEntry(ctx context.Context, key string) (*model.CacheEntry, error)
	UpsertEntry(ctx context.Context, entry model.CacheEntry) error
	// TouchEntry bumps access_count and last_accessed_at for a read hit.
	TouchEntry(ctx context.Context, key string, at time.Time) error
	// DeleteEntries removes all entries for a business, optionally narrowed
	// to one analysis type (empty string = all types). Returns count deleted.
	DeleteEntries(ctx context.Context, businessID string, analysisType model.AnalysisType) (int, error)
	// DeleteOlderThan removes entries created before cutoff, across all
	// businesses. Returns count deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// CacheStats aggregates entry counts, access totals and ages, optionally
	// scoped to one business (empty string = global).
	CacheStats(ctx context.Context, businessID string, now time.Time) (*model.CacheStats, error)

	// Business source data
	GetBusinessProfile(ctx context.Context, businessID string) (*model.BusinessProfile, error)
	UpsertBusinessProfile(ctx context.Context, profile model.BusinessProfile) error
	InsertCompetitorEvent(ctx context.Context, event model.CompetitorEvent) error
	CountCompetitorEvents(ctx context.Context, businessID string, since time.Time) (int, error)

	// Benchmarks
	GetBenchmark(ctx context.Context, industry, stage, metric string) (*model.BenchmarkStatistics, error)
	// UpsertBenchmarks writes a full set of metric statistics for one
	// (industry, stage) cohort.
	UpsertBenchmarks(ctx context.Context, industry, stage string, stats map[string]model.BenchmarkStatistics) error
	InsertSubmission(ctx context.Context, sub model.AnonymousSubmission) error
	ListSubmissions(ctx context.Context, industry, stage string) ([]model.AnonymousSubmission, error)
	ListSubmissionGroups(ctx context.Context) ([]model.SubmissionGroup, error)
	// InsertComparison appends a comparison to the audit log.
	InsertComparison(ctx context.Context, cmp model.BenchmarkComparison) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
