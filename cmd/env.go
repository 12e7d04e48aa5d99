package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlens-ai/marketlens/internal/analysis"
	"github.com/marketlens-ai/marketlens/internal/benchmark"
	"github.com/marketlens-ai/marketlens/internal/cache"
	"github.com/marketlens-ai/marketlens/internal/config"
	"github.com/marketlens-ai/marketlens/internal/fingerprint"
	"github.com/marketlens-ai/marketlens/internal/model"
	"github.com/marketlens-ai/marketlens/internal/monitoring"
	"github.com/marketlens-ai/marketlens/internal/signals"
	"github.com/marketlens-ai/marketlens/internal/store"
	"github.com/marketlens-ai/marketlens/pkg/anthropic"
)

// appEnv wires the store, cache, analyzer, benchmark engine, and refresh
// pipeline together. Lifecycle is owned here, not in package globals.
type appEnv struct {
	cfg        *config.Config
	store      store.Store
	cache      *cache.IntelligentCache
	analyzer   *analysis.Analyzer
	benchmarks *benchmark.IndustryBenchmarks
	queue      *cache.RefreshQueue
	collector  *monitoring.Collector
}

// openStore creates the configured store backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newAppEnv builds the full application environment. client may be nil,
// in which case one is constructed from config.
func newAppEnv(ctx context.Context, cfg *config.Config, client anthropic.Client) (*appEnv, error) {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Benchmark.SeedFile != "" {
		if err := benchmark.LoadSeed(cfg.Benchmark.SeedFile); err != nil {
			s.Close()
			return nil, err
		}
	}

	if client == nil {
		client = anthropic.NewClient(cfg.Anthropic.Key)
	}

	fp := fingerprint.NewStoreProvider(s)
	sig := signals.NewStoreSignals(s)

	// The queue hands stale entries to the analyzer, which writes back
	// through the cache. The analyzer is bound late to break the cycle.
	var analyzer *analysis.Analyzer
	queue := cache.NewRefreshQueue(cfg.Refresh, cache.RefresherFunc(
		func(ctx context.Context, key string, entry model.CacheEntry, cctx model.CacheContext) error {
			return analyzer.Refresh(ctx, key, entry, cctx)
		}))
	c := cache.New(cfg.Cache, s, fp, sig, queue)
	analyzer = analysis.New(analysis.Config{
		QuickModel: cfg.Anthropic.QuickModel,
		DeepModel:  cfg.Anthropic.DeepModel,
		MaxTokens:  cfg.Anthropic.MaxTokens,
	}, client, s, c)

	return &appEnv{
		cfg:        cfg,
		store:      s,
		cache:      c,
		analyzer:   analyzer,
		benchmarks: benchmark.New(cfg.Benchmark, s),
		queue:      queue,
		collector:  monitoring.NewCollector(s, queue),
	}, nil
}

func (e *appEnv) Close() {
	if e.queue != nil {
		e.queue.Stop()
	}
	if err := e.store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}
