package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/marketlens-ai/marketlens/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_cache (
	key              TEXT PRIMARY KEY,
	data             TEXT NOT NULL,
	business_id      TEXT NOT NULL,
	analysis_type    TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	last_accessed_at DATETIME NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 1,
	metadata         TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS business_profiles (
	business_id  TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	industry     TEXT NOT NULL DEFAULT '',
	website_text TEXT NOT NULL DEFAULT '',
	key_facts    TEXT NOT NULL DEFAULT '[]',
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS competitor_events (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL,
	competitor  TEXT NOT NULL DEFAULT '',
	event_type  TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	detected_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS industry_benchmarks (
	industry       TEXT NOT NULL,
	business_stage TEXT NOT NULL,
	metric_name    TEXT NOT NULL,
	statistics     TEXT NOT NULL,
	updated_at     DATETIME NOT NULL,
	PRIMARY KEY (industry, business_stage, metric_name)
);

CREATE TABLE IF NOT EXISTS anonymous_metrics (
	id             TEXT PRIMARY KEY,
	industry       TEXT NOT NULL,
	business_stage TEXT NOT NULL,
	metrics        TEXT NOT NULL,
	submitted_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS benchmark_comparisons (
	id                TEXT PRIMARY KEY,
	business_id       TEXT NOT NULL,
	industry          TEXT NOT NULL,
	business_stage    TEXT NOT NULL,
	metrics           TEXT NOT NULL,
	overall_score     REAL NOT NULL,
	strengths         TEXT NOT NULL,
	improvement_areas TEXT NOT NULL,
	generated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_cache_business ON analysis_cache(business_id);
CREATE INDEX IF NOT EXISTS idx_analysis_cache_created ON analysis_cache(created_at);
CREATE INDEX IF NOT EXISTS idx_competitor_events_lookup ON competitor_events(business_id, detected_at);
CREATE INDEX IF NOT EXISTS idx_anonymous_metrics_group ON anonymous_metrics(industry, business_stage);
CREATE INDEX IF NOT EXISTS idx_benchmark_comparisons_business ON benchmark_comparisons(business_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Analysis cache ---

func (s *SQLiteStore) GetEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, data, business_id, analysis_type, created_at, last_accessed_at, access_count, metadata
		 FROM analysis_cache WHERE key = ?`,
		key,
	)

	var e model.CacheEntry
	var data, metadata string
	err := row.Scan(&e.Key, &data, &e.BusinessID, &e.AnalysisType, &e.CreatedAt, &e.LastAccessedAt, &e.AccessCount, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get entry")
	}
	e.Data = json.RawMessage(data)
	if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal entry metadata")
	}
	return &e, nil
}

func (s *SQLiteStore) UpsertEntry(ctx context.Context, entry model.CacheEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entry metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_cache (key, data, business_id, analysis_type, created_at, last_accessed_at, access_count, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			business_id = excluded.business_id,
			analysis_type = excluded.analysis_type,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at,
			access_count = excluded.access_count,
			metadata = excluded.metadata`,
		entry.Key, string(entry.Data), entry.BusinessID, string(entry.AnalysisType),
		entry.CreatedAt, entry.LastAccessedAt, entry.AccessCount, string(metadata),
	)
	return eris.Wrap(err, "sqlite: upsert entry")
}

func (s *SQLiteStore) TouchEntry(ctx context.Context, key string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE analysis_cache SET access_count = access_count + 1, last_accessed_at = ? WHERE key = ?`,
		at, key,
	)
	return eris.Wrapf(err, "sqlite: touch entry %s", key)
}

func (s *SQLiteStore) DeleteEntries(ctx context.Context, businessID string, analysisType model.AnalysisType) (int, error) {
	query := `DELETE FROM analysis_cache WHERE business_id = ?`
	args := []any{businessID}
	if analysisType != "" {
		query += ` AND analysis_type = ?`
		args = append(args, string(analysisType))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete entries for %s", businessID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_cache WHERE created_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old entries")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CacheStats(ctx context.Context, businessID string, now time.Time) (*model.CacheStats, error) {
	query := `SELECT analysis_type, created_at, access_count FROM analysis_cache`
	var args []any
	if businessID != "" {
		query += ` WHERE business_id = ?`
		args = append(args, businessID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cache stats")
	}
	defer rows.Close()

	agg := newStatsAggregator(now)
	for rows.Next() {
		var analysisType string
		var createdAt time.Time
		var accessCount int
		if err := rows.Scan(&analysisType, &createdAt, &accessCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stats row")
		}
		agg.add(analysisType, createdAt, accessCount)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: cache stats iterate")
	}
	return agg.stats(), nil
}

// --- Business source data ---

func (s *SQLiteStore) GetBusinessProfile(ctx context.Context, businessID string) (*model.BusinessProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT business_id, name, industry, website_text, key_facts, updated_at
		 FROM business_profiles WHERE business_id = ?`,
		businessID,
	)

	var p model.BusinessProfile
	var keyFacts string
	err := row.Scan(&p.BusinessID, &p.Name, &p.Industry, &p.WebsiteText, &keyFacts, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get business profile")
	}
	if err := json.Unmarshal([]byte(keyFacts), &p.KeyFacts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal key facts")
	}
	return &p, nil
}

func (s *SQLiteStore) UpsertBusinessProfile(ctx context.Context, profile model.BusinessProfile) error {
	keyFacts, err := json.Marshal(profile.KeyFacts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal key facts")
	}
	if keyFacts == nil || string(keyFacts) == "null" {
		keyFacts = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO business_profiles (business_id, name, industry, website_text, key_facts, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(business_id) DO UPDATE SET
			name = excluded.name,
			industry = excluded.industry,
			website_text = excluded.website_text,
			key_facts = excluded.key_facts,
			updated_at = excluded.updated_at`,
		profile.BusinessID, profile.Name, profile.Industry, profile.WebsiteText, string(keyFacts), profile.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: upsert business profile")
}

func (s *SQLiteStore) InsertCompetitorEvent(ctx context.Context, event model.CompetitorEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO competitor_events (id, business_id, competitor, event_type, detail, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.BusinessID, event.Competitor, event.EventType, event.Detail, event.DetectedAt,
	)
	return eris.Wrap(err, "sqlite: insert competitor event")
}

func (s *SQLiteStore) CountCompetitorEvents(ctx context.Context, businessID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM competitor_events WHERE business_id = ? AND detected_at >= ?`,
		businessID, since,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count competitor events")
}

// --- Benchmarks ---

func (s *SQLiteStore) GetBenchmark(ctx context.Context, industry, stage, metric string) (*model.BenchmarkStatistics, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT statistics FROM industry_benchmarks
		 WHERE industry = ? AND business_stage = ? AND metric_name = ?`,
		industry, stage, metric,
	)

	var statsJSON string
	err := row.Scan(&statsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get benchmark")
	}
	var stats model.BenchmarkStatistics
	if err := json.Unmarshal([]byte(statsJSON), &stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal benchmark statistics")
	}
	return &stats, nil
}

func (s *SQLiteStore) UpsertBenchmarks(ctx context.Context, industry, stage string, stats map[string]model.BenchmarkStatistics) error {
	if len(stats) == 0 {
		return nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert benchmarks")
	}
	defer tx.Rollback() //nolint:errcheck

	for metric, st := range stats {
		statsJSON, err := json.Marshal(st)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal statistics for %s", metric)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO industry_benchmarks (industry, business_stage, metric_name, statistics, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(industry, business_stage, metric_name) DO UPDATE SET
				statistics = excluded.statistics,
				updated_at = excluded.updated_at`,
			industry, stage, metric, string(statsJSON), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert benchmark %s/%s/%s", industry, stage, metric)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert benchmarks")
}

func (s *SQLiteStore) InsertSubmission(ctx context.Context, sub model.AnonymousSubmission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	metricsJSON, err := json.Marshal(sub.Metrics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal submission metrics")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO anonymous_metrics (id, industry, business_stage, metrics, submitted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sub.ID, sub.Industry, sub.Stage, string(metricsJSON), sub.SubmittedAt,
	)
	return eris.Wrap(err, "sqlite: insert submission")
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, industry, stage string) ([]model.AnonymousSubmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, industry, business_stage, metrics, submitted_at
		 FROM anonymous_metrics WHERE industry = ? AND business_stage = ?
		 ORDER BY submitted_at`,
		industry, stage,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close()

	var subs []model.AnonymousSubmission
	for rows.Next() {
		var sub model.AnonymousSubmission
		var metricsJSON string
		if err := rows.Scan(&sub.ID, &sub.Industry, &sub.Stage, &metricsJSON, &sub.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		if err := json.Unmarshal([]byte(metricsJSON), &sub.Metrics); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal submission metrics")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

func (s *SQLiteStore) ListSubmissionGroups(ctx context.Context) ([]model.SubmissionGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT industry, business_stage, COUNT(*) FROM anonymous_metrics
		 GROUP BY industry, business_stage`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submission groups")
	}
	defer rows.Close()

	var groups []model.SubmissionGroup
	for rows.Next() {
		var g model.SubmissionGroup
		if err := rows.Scan(&g.Industry, &g.Stage, &g.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission group")
		}
		groups = append(groups, g)
	}
	return groups, eris.Wrap(rows.Err(), "sqlite: list submission groups iterate")
}

func (s *SQLiteStore) InsertComparison(ctx context.Context, cmp model.BenchmarkComparison) error {
	metricsJSON, err := json.Marshal(cmp.Metrics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal comparison metrics")
	}
	strengthsJSON, err := json.Marshal(cmp.Strengths)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal strengths")
	}
	improvementsJSON, err := json.Marshal(cmp.ImprovementAreas)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal improvement areas")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO benchmark_comparisons (id, business_id, industry, business_stage, metrics, overall_score, strengths, improvement_areas, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), cmp.BusinessID, cmp.Industry, cmp.Stage,
		string(metricsJSON), cmp.OverallScore, string(strengthsJSON), string(improvementsJSON), cmp.GeneratedAt,
	)
	return eris.Wrap(err, "sqlite: insert comparison")
}

// --- helpers ---

// statsAggregator folds cache entry rows into a CacheStats. Shared by both
// store backends so the aggregation semantics stay identical.
type statsAggregator struct {
	now           time.Time
	totalEntries  int
	totalAccesses int
	totalAgeHours float64
	byType        map[string]int
}

func newStatsAggregator(now time.Time) *statsAggregator {
	return &statsAggregator{now: now, byType: make(map[string]int)}
}

func (a *statsAggregator) add(analysisType string, createdAt time.Time, accessCount int) {
	a.totalEntries++
	a.totalAccesses += accessCount
	a.totalAgeHours += a.now.Sub(createdAt).Hours()
	a.byType[analysisType]++
}

func (a *statsAggregator) stats() *model.CacheStats {
	st := &model.CacheStats{
		TotalEntries: a.totalEntries,
		ByType:       a.byType,
	}
	if a.totalEntries > 0 {
		st.HitRate = float64(a.totalAccesses) / float64(a.totalEntries)
		st.AvgAgeHours = a.totalAgeHours / float64(a.totalEntries)
	}
	return st
}
