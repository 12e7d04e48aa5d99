package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/marketlens-ai/marketlens/internal/db"
	"github.com/marketlens-ai/marketlens/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot cache path.
var preparedStatements = map[string]string{
	"get_entry":     `SELECT key, data, business_id, analysis_type, created_at, last_accessed_at, access_count, metadata FROM analysis_cache WHERE key = $1`,
	"touch_entry":   `UPDATE analysis_cache SET access_count = access_count + 1, last_accessed_at = $1 WHERE key = $2`,
	"upsert_entry":  `INSERT INTO analysis_cache (key, data, business_id, analysis_type, created_at, last_accessed_at, access_count, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, business_id = EXCLUDED.business_id, analysis_type = EXCLUDED.analysis_type, created_at = EXCLUDED.created_at, last_accessed_at = EXCLUDED.last_accessed_at, access_count = EXCLUDED.access_count, metadata = EXCLUDED.metadata`,
	"get_benchmark": `SELECT statistics FROM industry_benchmarks WHERE industry = $1 AND business_stage = $2 AND metric_name = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_cache (
	key              TEXT PRIMARY KEY,
	data             JSONB NOT NULL,
	business_id      TEXT NOT NULL,
	analysis_type    TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	last_accessed_at TIMESTAMPTZ NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 1,
	metadata         JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS business_profiles (
	business_id  TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	industry     TEXT NOT NULL DEFAULT '',
	website_text TEXT NOT NULL DEFAULT '',
	key_facts    JSONB NOT NULL DEFAULT '[]',
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS competitor_events (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id TEXT NOT NULL,
	competitor  TEXT NOT NULL DEFAULT '',
	event_type  TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	detected_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS industry_benchmarks (
	industry       TEXT NOT NULL,
	business_stage TEXT NOT NULL,
	metric_name    TEXT NOT NULL,
	statistics     JSONB NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (industry, business_stage, metric_name)
);

CREATE TABLE IF NOT EXISTS anonymous_metrics (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	industry       TEXT NOT NULL,
	business_stage TEXT NOT NULL,
	metrics        JSONB NOT NULL,
	submitted_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS benchmark_comparisons (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_id       TEXT NOT NULL,
	industry          TEXT NOT NULL,
	business_stage    TEXT NOT NULL,
	metrics           JSONB NOT NULL,
	overall_score     DOUBLE PRECISION NOT NULL,
	strengths         JSONB NOT NULL,
	improvement_areas JSONB NOT NULL,
	generated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_cache_business ON analysis_cache(business_id);
CREATE INDEX IF NOT EXISTS idx_analysis_cache_created ON analysis_cache(created_at);
CREATE INDEX IF NOT EXISTS idx_competitor_events_lookup ON competitor_events(business_id, detected_at);
CREATE INDEX IF NOT EXISTS idx_anonymous_metrics_group ON anonymous_metrics(industry, business_stage);
CREATE INDEX IF NOT EXISTS idx_benchmark_comparisons_business ON benchmark_comparisons(business_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Analysis cache ---

func (s *PostgresStore) GetEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, data, business_id, analysis_type, created_at, last_accessed_at, access_count, metadata
		 FROM analysis_cache WHERE key = $1`,
		key,
	)

	var e model.CacheEntry
	var data, metadata []byte
	err := row.Scan(&e.Key, &data, &e.BusinessID, &e.AnalysisType, &e.CreatedAt, &e.LastAccessedAt, &e.AccessCount, &metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get entry")
	}
	e.Data = json.RawMessage(data)
	if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entry metadata")
	}
	return &e, nil
}

func (s *PostgresStore) UpsertEntry(ctx context.Context, entry model.CacheEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entry metadata")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_cache (key, data, business_id, analysis_type, created_at, last_accessed_at, access_count, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			business_id = EXCLUDED.business_id,
			analysis_type = EXCLUDED.analysis_type,
			created_at = EXCLUDED.created_at,
			last_accessed_at = EXCLUDED.last_accessed_at,
			access_count = EXCLUDED.access_count,
			metadata = EXCLUDED.metadata`,
		entry.Key, []byte(entry.Data), entry.BusinessID, string(entry.AnalysisType),
		entry.CreatedAt, entry.LastAccessedAt, entry.AccessCount, metadata,
	)
	return eris.Wrap(err, "postgres: upsert entry")
}

func (s *PostgresStore) TouchEntry(ctx context.Context, key string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE analysis_cache SET access_count = access_count + 1, last_accessed_at = $1 WHERE key = $2`,
		at, key,
	)
	return eris.Wrapf(err, "postgres: touch entry %s", key)
}

func (s *PostgresStore) DeleteEntries(ctx context.Context, businessID string, analysisType model.AnalysisType) (int, error) {
	var tag int64
	if analysisType != "" {
		res, err := s.pool.Exec(ctx,
			`DELETE FROM analysis_cache WHERE business_id = $1 AND analysis_type = $2`,
			businessID, string(analysisType),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: delete entries for %s", businessID)
		}
		tag = res.RowsAffected()
	} else {
		res, err := s.pool.Exec(ctx,
			`DELETE FROM analysis_cache WHERE business_id = $1`,
			businessID,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: delete entries for %s", businessID)
		}
		tag = res.RowsAffected()
	}
	return int(tag), nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.pool.Exec(ctx,
		`DELETE FROM analysis_cache WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old entries")
	}
	return int(res.RowsAffected()), nil
}

func (s *PostgresStore) CacheStats(ctx context.Context, businessID string, now time.Time) (*model.CacheStats, error) {
	query := `SELECT analysis_type, created_at, access_count FROM analysis_cache`
	var args []any
	if businessID != "" {
		query += ` WHERE business_id = $1`
		args = append(args, businessID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats")
	}
	defer rows.Close()

	agg := newStatsAggregator(now)
	for rows.Next() {
		var analysisType string
		var createdAt time.Time
		var accessCount int
		if err := rows.Scan(&analysisType, &createdAt, &accessCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats row")
		}
		agg.add(analysisType, createdAt, accessCount)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: cache stats iterate")
	}
	return agg.stats(), nil
}

// --- Business source data ---

func (s *PostgresStore) GetBusinessProfile(ctx context.Context, businessID string) (*model.BusinessProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT business_id, name, industry, website_text, key_facts, updated_at
		 FROM business_profiles WHERE business_id = $1`,
		businessID,
	)

	var p model.BusinessProfile
	var keyFacts []byte
	err := row.Scan(&p.BusinessID, &p.Name, &p.Industry, &p.WebsiteText, &keyFacts, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get business profile")
	}
	if err := json.Unmarshal(keyFacts, &p.KeyFacts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal key facts")
	}
	return &p, nil
}

func (s *PostgresStore) UpsertBusinessProfile(ctx context.Context, profile model.BusinessProfile) error {
	keyFacts, err := json.Marshal(profile.KeyFacts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal key facts")
	}
	if keyFacts == nil || string(keyFacts) == "null" {
		keyFacts = []byte("[]")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO business_profiles (business_id, name, industry, website_text, key_facts, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (business_id) DO UPDATE SET
			name = EXCLUDED.name,
			industry = EXCLUDED.industry,
			website_text = EXCLUDED.website_text,
			key_facts = EXCLUDED.key_facts,
			updated_at = EXCLUDED.updated_at`,
		profile.BusinessID, profile.Name, profile.Industry, profile.WebsiteText, keyFacts, profile.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: upsert business profile")
}

func (s *PostgresStore) InsertCompetitorEvent(ctx context.Context, event model.CompetitorEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO competitor_events (id, business_id, competitor, event_type, detail, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.BusinessID, event.Competitor, event.EventType, event.Detail, event.DetectedAt,
	)
	return eris.Wrap(err, "postgres: insert competitor event")
}

func (s *PostgresStore) CountCompetitorEvents(ctx context.Context, businessID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM competitor_events WHERE business_id = $1 AND detected_at >= $2`,
		businessID, since,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count competitor events")
}

// --- Benchmarks ---

func (s *PostgresStore) GetBenchmark(ctx context.Context, industry, stage, metric string) (*model.BenchmarkStatistics, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT statistics FROM industry_benchmarks
		 WHERE industry = $1 AND business_stage = $2 AND metric_name = $3`,
		industry, stage, metric,
	)

	var statsJSON []byte
	err := row.Scan(&statsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get benchmark")
	}
	var stats model.BenchmarkStatistics
	if err := json.Unmarshal(statsJSON, &stats); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal benchmark statistics")
	}
	return &stats, nil
}

// UpsertBenchmarks writes a cohort's statistics in one bulk upsert.
func (s *PostgresStore) UpsertBenchmarks(ctx context.Context, industry, stage string, stats map[string]model.BenchmarkStatistics) error {
	if len(stats) == 0 {
		return nil
	}
	now := time.Now().UTC()

	rows := make([][]any, 0, len(stats))
	for metric, st := range stats {
		statsJSON, err := json.Marshal(st)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal statistics for %s", metric)
		}
		rows = append(rows, []any{industry, stage, metric, statsJSON, now})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "industry_benchmarks",
		Columns:      []string{"industry", "business_stage", "metric_name", "statistics", "updated_at"},
		ConflictKeys: []string{"industry", "business_stage", "metric_name"},
	}, rows)
	return eris.Wrapf(err, "postgres: upsert benchmarks %s/%s", industry, stage)
}

func (s *PostgresStore) InsertSubmission(ctx context.Context, sub model.AnonymousSubmission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	metricsJSON, err := json.Marshal(sub.Metrics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal submission metrics")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO anonymous_metrics (id, industry, business_stage, metrics, submitted_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, sub.Industry, sub.Stage, metricsJSON, sub.SubmittedAt,
	)
	return eris.Wrap(err, "postgres: insert submission")
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, industry, stage string) ([]model.AnonymousSubmission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, industry, business_stage, metrics, submitted_at
		 FROM anonymous_metrics WHERE industry = $1 AND business_stage = $2
		 ORDER BY submitted_at`,
		industry, stage,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var subs []model.AnonymousSubmission
	for rows.Next() {
		var sub model.AnonymousSubmission
		var metricsJSON []byte
		if err := rows.Scan(&sub.ID, &sub.Industry, &sub.Stage, &metricsJSON, &sub.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		if err := json.Unmarshal(metricsJSON, &sub.Metrics); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal submission metrics")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func (s *PostgresStore) ListSubmissionGroups(ctx context.Context) ([]model.SubmissionGroup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT industry, business_stage, COUNT(*) FROM anonymous_metrics
		 GROUP BY industry, business_stage`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submission groups")
	}
	defer rows.Close()

	var groups []model.SubmissionGroup
	for rows.Next() {
		var g model.SubmissionGroup
		if err := rows.Scan(&g.Industry, &g.Stage, &g.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission group")
		}
		groups = append(groups, g)
	}
	return groups, eris.Wrap(rows.Err(), "postgres: list submission groups iterate")
}

func (s *PostgresStore) InsertComparison(ctx context.Context, cmp model.BenchmarkComparison) error {
	metricsJSON, err := json.Marshal(cmp.Metrics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal comparison metrics")
	}
	strengthsJSON, err := json.Marshal(cmp.Strengths)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal strengths")
	}
	improvementsJSON, err := json.Marshal(cmp.ImprovementAreas)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal improvement areas")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO benchmark_comparisons (id, business_id, industry, business_stage, metrics, overall_score, strengths, improvement_areas, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(), cmp.BusinessID, cmp.Industry, cmp.Stage,
		metricsJSON, cmp.OverallScore, strengthsJSON, improvementsJSON, cmp.GeneratedAt,
	)
	return eris.Wrap(err, "postgres: insert comparison")
}
