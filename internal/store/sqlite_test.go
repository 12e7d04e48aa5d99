package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens-ai/marketlens/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testEntry(key, businessID string, analysisType model.AnalysisType, createdAt time.Time) model.CacheEntry {
	return model.CacheEntry{
		Key:            key,
		Data:           json.RawMessage(`{"summary":"strong positioning"}`),
		BusinessID:     businessID,
		AnalysisType:   analysisType,
		CreatedAt:      createdAt,
		LastAccessedAt: createdAt,
		AccessCount:    1,
		Metadata: model.CacheMetadata{
			BusinessDataHash: "hash-1",
			Industry:         "saas",
		},
	}
}

// --- Analysis cache ---

func TestSQLite_Entry_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	err := st.UpsertEntry(ctx, testEntry("biz-1:strategic", "biz-1", model.AnalysisStrategic, now))
	require.NoError(t, err)

	e, err := st.GetEntry(ctx, "biz-1:strategic")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "biz-1", e.BusinessID)
	assert.Equal(t, model.AnalysisStrategic, e.AnalysisType)
	assert.Equal(t, 1, e.AccessCount)
	assert.Equal(t, "hash-1", e.Metadata.BusinessDataHash)
	assert.JSONEq(t, `{"summary":"strong positioning"}`, string(e.Data))
}

func TestSQLite_Entry_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	e, err := st.GetEntry(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_Entry_UpsertReplacesOnKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	first := testEntry("biz-1:marketing", "biz-1", model.AnalysisMarketing, now.Add(-time.Hour))
	first.AccessCount = 7
	require.NoError(t, st.UpsertEntry(ctx, first))

	second := testEntry("biz-1:marketing", "biz-1", model.AnalysisMarketing, now)
	second.Data = json.RawMessage(`{"summary":"updated"}`)
	require.NoError(t, st.UpsertEntry(ctx, second))

	e, err := st.GetEntry(ctx, "biz-1:marketing")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.JSONEq(t, `{"summary":"updated"}`, string(e.Data))
	assert.Equal(t, 1, e.AccessCount) // reset by upsert

	// Exactly one row under the key.
	stats, err := st.CacheStats(ctx, "biz-1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
}

func TestSQLite_Entry_Touch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, st.UpsertEntry(ctx, testEntry("k1", "biz-1", model.AnalysisQuick, now)))

	later := now.Add(30 * time.Minute)
	require.NoError(t, st.TouchEntry(ctx, "k1", later))
	require.NoError(t, st.TouchEntry(ctx, "k1", later.Add(time.Minute)))

	e, err := st.GetEntry(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 3, e.AccessCount)
}

func TestSQLite_Entry_TouchMissingIsNoop(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.TouchEntry(context.Background(), "ghost", time.Now().UTC())
	assert.NoError(t, err)
}

func TestSQLite_DeleteEntries_BusinessScoped(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.UpsertEntry(ctx, testEntry("a:strategic", "biz-a", model.AnalysisStrategic, now)))
	require.NoError(t, st.UpsertEntry(ctx, testEntry("a:quick", "biz-a", model.AnalysisQuick, now)))
	require.NoError(t, st.UpsertEntry(ctx, testEntry("b:quick", "biz-b", model.AnalysisQuick, now)))

	n, err := st.DeleteEntries(ctx, "biz-a", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Other business untouched.
	e, err := st.GetEntry(ctx, "b:quick")
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestSQLite_DeleteEntries_TypeScoped(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.UpsertEntry(ctx, testEntry("a:strategic", "biz-a", model.AnalysisStrategic, now)))
	require.NoError(t, st.UpsertEntry(ctx, testEntry("a:quick", "biz-a", model.AnalysisQuick, now)))

	n, err := st.DeleteEntries(ctx, "biz-a", model.AnalysisQuick)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := st.GetEntry(ctx, "a:strategic")
	require.NoError(t, err)
	assert.NotNil(t, e)
	e, err = st.GetEntry(ctx, "a:quick")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_DeleteOlderThan(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// One entry created 30 hours ago, one created 1 hour ago.
	require.NoError(t, st.UpsertEntry(ctx, testEntry("old", "biz-a", model.AnalysisQuick, now.Add(-30*time.Hour))))
	require.NoError(t, st.UpsertEntry(ctx, testEntry("fresh", "biz-a", model.AnalysisQuick, now.Add(-1*time.Hour))))

	n, err := st.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := st.GetEntry(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, e)
	e, err = st.GetEntry(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_CacheStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	e1 := testEntry("s1", "biz-a", model.AnalysisStrategic, now.Add(-10*time.Hour))
	e1.AccessCount = 5
	e2 := testEntry("q1", "biz-a", model.AnalysisQuick, now.Add(-2*time.Hour))
	e2.AccessCount = 1
	e3 := testEntry("q2", "biz-b", model.AnalysisQuick, now.Add(-6*time.Hour))
	require.NoError(t, st.UpsertEntry(ctx, e1))
	require.NoError(t, st.UpsertEntry(ctx, e2))
	require.NoError(t, st.UpsertEntry(ctx, e3))

	stats, err := st.CacheStats(ctx, "", now)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntries)
	assert.InDelta(t, 7.0/3.0, stats.HitRate, 0.01)
	assert.InDelta(t, 6.0, stats.AvgAgeHours, 0.1)
	assert.Equal(t, 1, stats.ByType["strategic"])
	assert.Equal(t, 2, stats.ByType["quick"])

	scoped, err := st.CacheStats(ctx, "biz-a", now)
	require.NoError(t, err)
	assert.Equal(t, 2, scoped.TotalEntries)
	assert.InDelta(t, 3.0, scoped.HitRate, 0.01)
}

func TestSQLite_CacheStats_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	stats, err := st.CacheStats(context.Background(), "", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntries)
	assert.Zero(t, stats.HitRate)
	assert.Zero(t, stats.AvgAgeHours)
}

// --- Business profiles ---

func TestSQLite_BusinessProfile_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	profile := model.BusinessProfile{
		BusinessID:  "biz-1",
		Name:        "Acme Analytics",
		Industry:    "saas",
		WebsiteText: "We help teams ship faster.",
		KeyFacts:    []string{"founded 2019", "remote-first"},
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, st.UpsertBusinessProfile(ctx, profile))

	got, err := st.GetBusinessProfile(ctx, "biz-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme Analytics", got.Name)
	assert.Equal(t, []string{"founded 2019", "remote-first"}, got.KeyFacts)

	// Overwrite.
	profile.Name = "Acme Analytics Inc"
	require.NoError(t, st.UpsertBusinessProfile(ctx, profile))
	got, err = st.GetBusinessProfile(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Analytics Inc", got.Name)
}

func TestSQLite_BusinessProfile_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetBusinessProfile(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Competitor events ---

func TestSQLite_CompetitorEvents_CountSince(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, at := range []time.Time{
		now.Add(-72 * time.Hour),
		now.Add(-10 * time.Hour),
		now.Add(-1 * time.Hour),
	} {
		require.NoError(t, st.InsertCompetitorEvent(ctx, model.CompetitorEvent{
			BusinessID: "biz-1",
			Competitor: "rival.io",
			EventType:  "pricing_change",
			DetectedAt: at,
		}))
	}
	// Different business should not count.
	require.NoError(t, st.InsertCompetitorEvent(ctx, model.CompetitorEvent{
		BusinessID: "biz-2",
		Competitor: "other.co",
		EventType:  "launch",
		DetectedAt: now,
	}))

	count, err := st.CountCompetitorEvents(ctx, "biz-1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = st.CountCompetitorEvents(ctx, "biz-1", now.Add(-100*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// --- Benchmarks ---

func TestSQLite_Benchmarks_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	stats := map[string]model.BenchmarkStatistics{
		"conversion_rate": {P10: 0.5, P25: 1.0, P50: 2.0, P75: 3.5, P90: 5.0, Mean: 2.4, SampleSize: 40},
		"monthly_traffic": {P10: 500, P25: 2000, P50: 8000, P75: 25000, P90: 80000, Mean: 19000, SampleSize: 40},
	}
	require.NoError(t, st.UpsertBenchmarks(ctx, "saas", "growth", stats))

	got, err := st.GetBenchmark(ctx, "saas", "growth", "conversion_rate")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 2.0, got.P50, 0.001)
	assert.Equal(t, 40, got.SampleSize)
	assert.False(t, got.Synthetic)

	// Overwrite one metric.
	require.NoError(t, st.UpsertBenchmarks(ctx, "saas", "growth", map[string]model.BenchmarkStatistics{
		"conversion_rate": {P10: 0.6, P25: 1.1, P50: 2.2, P75: 3.6, P90: 5.2, Mean: 2.5, SampleSize: 55},
	}))
	got, err = st.GetBenchmark(ctx, "saas", "growth", "conversion_rate")
	require.NoError(t, err)
	assert.Equal(t, 55, got.SampleSize)
}

func TestSQLite_Benchmarks_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetBenchmark(context.Background(), "saas", "growth", "unknown_metric")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Submissions_RoundtripAndGroups(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.InsertSubmission(ctx, model.AnonymousSubmission{
			Industry:    "saas",
			Stage:       "growth",
			Metrics:     map[string]float64{"conversion_rate": float64(i) + 1},
			SubmittedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, st.InsertSubmission(ctx, model.AnonymousSubmission{
		Industry:    "ecommerce",
		Stage:       "startup",
		Metrics:     map[string]float64{"conversion_rate": 1.5},
		SubmittedAt: now,
	}))

	subs, err := st.ListSubmissions(ctx, "saas", "growth")
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.InDelta(t, 1.0, subs[0].Metrics["conversion_rate"], 0.001)

	groups, err := st.ListSubmissionGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	counts := make(map[string]int)
	for _, g := range groups {
		counts[g.Industry+"/"+g.Stage] = g.Count
	}
	assert.Equal(t, 3, counts["saas/growth"])
	assert.Equal(t, 1, counts["ecommerce/startup"])
}

func TestSQLite_InsertComparison(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cmp := model.BenchmarkComparison{
		BusinessID:   "biz-1",
		Industry:     "saas",
		Stage:        "growth",
		OverallScore: 62.5,
		Metrics: []model.MetricComparison{
			{Metric: "conversion_rate", YourValue: 2.0, Percentile: 50, Performance: model.TierAboveAverage},
		},
		Strengths:        []string{"Monthly Traffic: 80th percentile"},
		ImprovementAreas: []string{"Conversion Rate: 2.0 points below the industry median"},
		GeneratedAt:      time.Now().UTC(),
	}
	assert.NoError(t, st.InsertComparison(ctx, cmp))
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// Migrate was already called in newTestSQLiteStore; calling again should not error.
	err := st.Migrate(context.Background())
	require.NoError(t, err)
}
