package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func benchmarksConfig() UpsertConfig {
	return UpsertConfig{
		Table:        "industry_benchmarks",
		Columns:      []string{"industry", "business_stage", "metric_name", "statistics"},
		ConflictKeys: []string{"industry", "business_stage", "metric_name"},
	}
}

func TestBulkUpsert_EmptyRowsIsNoop(t *testing.T) {
	n, err := BulkUpsert(nil, nil, benchmarksConfig(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpsert_RejectsMissingColumns(t *testing.T) {
	cfg := benchmarksConfig()
	cfg.Columns = nil

	_, err := BulkUpsert(nil, nil, cfg, [][]any{{"saas", "growth", "conversion_rate"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_RejectsMissingConflictKeys(t *testing.T) {
	cfg := benchmarksConfig()
	cfg.ConflictKeys = nil

	_, err := BulkUpsert(nil, nil, cfg, [][]any{{"saas", "growth", "conversion_rate", "{}"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestStagingName(t *testing.T) {
	assert.Equal(t, "_tmp_upsert_industry_benchmarks", benchmarksConfig().stagingName())
	assert.Equal(t, "_tmp_upsert_audit_benchmark_comparisons",
		UpsertConfig{Table: "audit.benchmark_comparisons"}.stagingName())
}

func TestMergeSQL_UpdatesNonKeyColumns(t *testing.T) {
	sql := benchmarksConfig().mergeSQL("_tmp_upsert_industry_benchmarks")

	assert.Contains(t, sql, `INSERT INTO "industry_benchmarks"`)
	assert.Contains(t, sql, `ON CONFLICT ("industry", "business_stage", "metric_name")`)
	assert.Contains(t, sql, `DO UPDATE SET "statistics" = EXCLUDED."statistics"`)
	assert.NotContains(t, sql, `"industry" = EXCLUDED`)
}

func TestMergeSQL_ExplicitUpdateCols(t *testing.T) {
	cfg := benchmarksConfig()
	cfg.UpdateCols = []string{"statistics"}

	sql := cfg.mergeSQL(cfg.stagingName())
	assert.Contains(t, sql, `DO UPDATE SET "statistics" = EXCLUDED."statistics"`)
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"analysis_cache"`, sanitizeTable("analysis_cache"))
	assert.Equal(t, `"audit"."benchmark_comparisons"`, sanitizeTable("audit.benchmark_comparisons"))
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"industry", "business_stage"`, quoteAndJoin([]string{"industry", "business_stage"}))
}
