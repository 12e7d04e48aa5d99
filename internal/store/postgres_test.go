package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens-ai/marketlens/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetEntry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT key, data, business_id, analysis_type`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	e, err := s.GetEntry(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetEntry_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"key", "data", "business_id", "analysis_type", "created_at", "last_accessed_at", "access_count", "metadata",
	}).AddRow(
		"biz-1:strategic", []byte(`{"summary":"ok"}`), "biz-1", "strategic", now, now, 3, []byte(`{"business_data_hash":"h1"}`),
	)
	mock.ExpectQuery(`SELECT key, data, business_id, analysis_type`).
		WithArgs("biz-1:strategic").
		WillReturnRows(rows)

	e, err := s.GetEntry(context.Background(), "biz-1:strategic")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "biz-1", e.BusinessID)
	assert.Equal(t, 3, e.AccessCount)
	assert.Equal(t, "h1", e.Metadata.BusinessDataHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertEntry(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("k1", pgxmock.AnyArg(), "biz-1", "quick", now, now, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertEntry(context.Background(), testEntry("k1", "biz-1", model.AnalysisQuick, now))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TouchEntry(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE analysis_cache SET access_count = access_count \+ 1`).
		WithArgs(at, "k1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.TouchEntry(context.Background(), "k1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteEntries_AllTypes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM analysis_cache WHERE business_id = \$1`).
		WithArgs("biz-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteEntries(context.Background(), "biz-1", "")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteEntries_TypeScoped(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM analysis_cache WHERE business_id = \$1 AND analysis_type = \$2`).
		WithArgs("biz-1", "marketing").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	n, err := s.DeleteEntries(context.Background(), "biz-1", model.AnalysisMarketing)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteOlderThan(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cutoff := time.Now().UTC().Add(-720 * time.Hour)

	mock.ExpectExec(`DELETE FROM analysis_cache WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CacheStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"analysis_type", "created_at", "access_count"}).
		AddRow("strategic", now.Add(-10*time.Hour), 5).
		AddRow("quick", now.Add(-2*time.Hour), 1)
	mock.ExpectQuery(`SELECT analysis_type, created_at, access_count FROM analysis_cache`).
		WillReturnRows(rows)

	stats, err := s.CacheStats(context.Background(), "", now)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.InDelta(t, 3.0, stats.HitRate, 0.01)
	assert.InDelta(t, 6.0, stats.AvgAgeHours, 0.1)
	assert.Equal(t, 1, stats.ByType["strategic"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBenchmark_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT statistics FROM industry_benchmarks`).
		WithArgs("saas", "growth", "unknown").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetBenchmark(context.Background(), "saas", "growth", "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBenchmark_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"statistics"}).
		AddRow([]byte(`{"p10":0.5,"p25":1,"p50":2,"p75":3.5,"p90":5,"mean":2.4,"sample_size":40,"synthetic":false}`))
	mock.ExpectQuery(`SELECT statistics FROM industry_benchmarks`).
		WithArgs("saas", "growth", "conversion_rate").
		WillReturnRows(rows)

	got, err := s.GetBenchmark(context.Background(), "saas", "growth", "conversion_rate")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 2.0, got.P50, 0.001)
	assert.Equal(t, 40, got.SampleSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertBenchmarks_BulkPath(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_industry_benchmarks"},
		[]string{"industry", "business_stage", "metric_name", "statistics", "updated_at"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "industry_benchmarks"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.UpsertBenchmarks(context.Background(), "saas", "growth", map[string]model.BenchmarkStatistics{
		"conversion_rate": {P10: 0.5, P25: 1, P50: 2, P75: 3.5, P90: 5, Mean: 2.4, SampleSize: 40},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertSubmission(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO anonymous_metrics`).
		WithArgs(pgxmock.AnyArg(), "saas", "growth", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertSubmission(context.Background(), model.AnonymousSubmission{
		Industry:    "saas",
		Stage:       "growth",
		Metrics:     map[string]float64{"conversion_rate": 2.1},
		SubmittedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertComparison(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO benchmark_comparisons`).
		WithArgs(pgxmock.AnyArg(), "biz-1", "saas", "growth",
			pgxmock.AnyArg(), 62.5, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertComparison(context.Background(), model.BenchmarkComparison{
		BusinessID:   "biz-1",
		Industry:     "saas",
		Stage:        "growth",
		OverallScore: 62.5,
		GeneratedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountCompetitorEvents(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Now().UTC().Add(-48 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM competitor_events`).
		WithArgs("biz-1", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(6))

	count, err := s.CountCompetitorEvents(context.Background(), "biz-1", since)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
