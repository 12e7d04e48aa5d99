// Package analysis recomputes business analyses via the Anthropic API and
// feeds the results back through the cache.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlens-ai/marketlens/internal/cache"
	"github.com/marketlens-ai/marketlens/internal/model"
	"github.com/marketlens-ai/marketlens/internal/resilience"
	"github.com/marketlens-ai/marketlens/internal/store"
	"github.com/marketlens-ai/marketlens/pkg/anthropic"
)

const systemPrompt = `You are a marketing analyst for small and mid-size businesses.
Ground every observation in the provided business data. Be specific and actionable.`

// prompts maps each analysis type to its task instruction.
var prompts = map[model.AnalysisType]string{
	model.AnalysisStrategic:   "Produce a strategic growth analysis: market position, differentiation, and the three highest-leverage growth moves.",
	model.AnalysisMarketing:   "Produce a marketing analysis: channel mix, messaging gaps, and concrete campaign recommendations.",
	model.AnalysisCompetitive: "Produce a competitive analysis: likely competitor moves, defensible advantages, and counter-positioning.",
	model.AnalysisQuick:       "Produce a short snapshot: the three most notable observations about this business right now.",
}

// Payload is the cached analysis artifact.
type Payload struct {
	Analysis    string    `json:"analysis"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Analyzer computes analyses and writes them through the cache.
// API calls run through a circuit breaker so a degraded upstream fails
// fast instead of piling up slow requests.
type Analyzer struct {
	client  anthropic.Client
	store   store.Store
	cache   *cache.IntelligentCache
	breaker *resilience.CircuitBreaker

	quickModel string
	deepModel  string
	maxTokens  int64
}

// Config holds the model selection for the analyzer.
type Config struct {
	QuickModel string
	DeepModel  string
	MaxTokens  int64
}

func New(cfg Config, client anthropic.Client, s store.Store, c *cache.IntelligentCache) *Analyzer {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Analyzer{
		client:     client,
		store:      s,
		cache:      c,
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		quickModel: cfg.QuickModel,
		deepModel:  cfg.DeepModel,
		maxTokens:  maxTokens,
	}
}

// CacheKey is the canonical cache key for one business's analysis.
func CacheKey(businessID string, analysisType model.AnalysisType) string {
	return businessID + ":" + string(analysisType)
}

// GetOrCompute serves an analysis from the cache when fresh enough,
// computing and caching a new one otherwise.
func (a *Analyzer) GetOrCompute(ctx context.Context, businessID string, analysisType model.AnalysisType, cctx model.CacheContext) (json.RawMessage, bool, error) {
	key := CacheKey(businessID, analysisType)

	if res := a.cache.Get(ctx, key, cctx); res.FromCache {
		return res.Data, true, nil
	}

	data, err := a.Compute(ctx, businessID, analysisType)
	if err != nil {
		return nil, false, err
	}
	a.cache.Set(ctx, key, data, cctx, analysisType, nil)
	return data, false, nil
}

// Compute runs one analysis against the Anthropic API.
func (a *Analyzer) Compute(ctx context.Context, businessID string, analysisType model.AnalysisType) (json.RawMessage, error) {
	profile, err := a.store.GetBusinessProfile(ctx, businessID)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: load profile %s", businessID)
	}
	if profile == nil {
		return nil, eris.Errorf("analysis: no profile for business %s", businessID)
	}

	task, ok := prompts[analysisType]
	if !ok {
		return nil, eris.Errorf("analysis: unknown analysis type %q", analysisType)
	}

	chosen := a.modelFor(analysisType)
	resp, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     chosen,
			MaxTokens: a.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
			Messages: []anthropic.Message{
				{Role: "user", Content: task + "\n\n" + profileContext(profile)},
			},
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: %s analysis for %s", analysisType, businessID)
	}
	resp.Usage.LogCost(chosen, string(analysisType))

	payload, err := json.Marshal(Payload{
		Analysis:    resp.Text(),
		Model:       resp.Model,
		GeneratedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: marshal payload")
	}
	return payload, nil
}

// Refresh implements cache.Refresher: recompute a stale entry and write
// the fresh result back.
func (a *Analyzer) Refresh(ctx context.Context, key string, entry model.CacheEntry, cctx model.CacheContext) error {
	if cctx.BusinessID == "" {
		cctx.BusinessID = entry.BusinessID
	}
	if cctx.Industry == "" {
		cctx.Industry = entry.Metadata.Industry
	}

	data, err := a.Compute(ctx, cctx.BusinessID, entry.AnalysisType)
	if err != nil {
		return err
	}
	a.cache.Set(ctx, key, data, cctx, entry.AnalysisType, nil)
	zap.L().Info("analysis: background refresh written",
		zap.String("key", key),
		zap.String("analysis_type", string(entry.AnalysisType)))
	return nil
}

func (a *Analyzer) modelFor(analysisType model.AnalysisType) string {
	if analysisType == model.AnalysisQuick {
		return a.quickModel
	}
	return a.deepModel
}

func profileContext(p *model.BusinessProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\nIndustry: %s\n", p.Name, p.Industry)
	if len(p.KeyFacts) > 0 {
		b.WriteString("Key facts:\n")
		for _, f := range p.KeyFacts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if p.WebsiteText != "" {
		fmt.Fprintf(&b, "\nWebsite content:\n%s\n", p.WebsiteText)
	}
	return b.String()
}
