package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlens-ai/marketlens/internal/model"
	"github.com/marketlens-ai/marketlens/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := newAppEnv(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.store.Migrate(ctx); err != nil {
			return err
		}
		env.queue.Start()

		checker := monitoring.NewChecker(env.collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *appEnv) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: env.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/businesses/{businessID}/analysis/{analysisType}", env.handleGetAnalysis)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", env.handleCacheStats)
			r.Post("/invalidate", env.handleCacheInvalidate)
			r.Post("/cleanup", env.handleCacheCleanup)
		})

		r.Route("/benchmarks", func(r chi.Router) {
			r.Post("/compare", env.handleBenchmarkCompare)
			r.Post("/submit", env.handleBenchmarkSubmit)
			r.Post("/recalculate", env.handleBenchmarkRecalculate)
		})

		r.Get("/monitoring/snapshot", env.handleMonitoringSnapshot)
	})

	return r
}

// handleGetAnalysis serves a cached analysis, computing a fresh one on a
// miss. ?refresh=true bypasses the cache entirely.
func (e *appEnv) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	analysisType := model.AnalysisType(chi.URLParam(r, "analysisType"))

	cctx := model.CacheContext{
		BusinessID:   businessID,
		Industry:     r.URL.Query().Get("industry"),
		ForceRefresh: r.URL.Query().Get("refresh") == "true",
	}

	data, fromCache, err := e.analyzer.GetOrCompute(r.Context(), businessID, analysisType, cctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       json.RawMessage(data),
		"from_cache": fromCache,
	})
}

func (e *appEnv) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := e.cache.Stats(r.Context(), r.URL.Query().Get("business_id"))
	writeJSON(w, http.StatusOK, stats)
}

func (e *appEnv) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessID   string `json:"business_id"`
		AnalysisType string `json:"analysis_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BusinessID == "" {
		writeError(w, http.StatusBadRequest, eris.New("business_id is required"))
		return
	}

	e.cache.Invalidate(r.Context(), req.BusinessID, model.AnalysisType(req.AnalysisType))
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (e *appEnv) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxAgeHours int `json:"max_age_hours"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
	}

	deleted := e.cache.Cleanup(r.Context(), req.MaxAgeHours)
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// handleBenchmarkCompare runs a comparison and returns it together with
// prioritized recommendations.
func (e *appEnv) handleBenchmarkCompare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessID string             `json:"business_id"`
		Industry   string             `json:"industry"`
		Stage      string             `json:"stage"`
		Metrics    map[string]float64 `json:"metrics"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	if req.Industry == "" || len(req.Metrics) == 0 {
		writeError(w, http.StatusBadRequest, eris.New("industry and metrics are required"))
		return
	}

	cmp, err := e.benchmarks.CompareToIndustry(r.Context(), req.BusinessID, req.Industry, req.Stage, req.Metrics)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"comparison":      cmp,
		"recommendations": e.benchmarks.GenerateRecommendations(cmp),
	})
}

func (e *appEnv) handleBenchmarkSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Industry string             `json:"industry"`
		Stage    string             `json:"stage"`
		Metrics  map[string]float64 `json:"metrics"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}

	if err := e.benchmarks.SubmitMetricsAnonymously(r.Context(), req.Industry, req.Stage, req.Metrics); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (e *appEnv) handleBenchmarkRecalculate(w http.ResponseWriter, r *http.Request) {
	if err := e.benchmarks.RecalculateBenchmarks(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recalculated"})
}

func (e *appEnv) handleMonitoringSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := e.collector.Collect(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
