// Package monitoring collects cache and refresh-pipeline health metrics,
// evaluates them against thresholds, and delivers webhook alerts.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/marketlens-ai/marketlens/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Cache metrics.
	CacheEntries     int            `json:"cache_entries"`
	CacheHitRate     float64        `json:"cache_hit_rate"`
	CacheAvgAgeHours float64        `json:"cache_avg_age_hours"`
	CacheByType      map[string]int `json:"cache_by_type"`

	// Refresh queue metrics.
	QueueDepth      int     `json:"queue_depth"`
	QueueCapacity   int     `json:"queue_capacity"`
	QueueSaturation float64 `json:"queue_saturation"`

	// Benchmark pool metrics.
	BenchmarkCohorts     int `json:"benchmark_cohorts"`
	BenchmarkSubmissions int `json:"benchmark_submissions"`

	CollectedAt time.Time `json:"collected_at"`
}

// QueueStats abstracts the refresh queue methods needed by the collector.
type QueueStats interface {
	Depth() int
	Capacity() int
}

// Collector gathers metrics from the store and refresh queue.
type Collector struct {
	store store.Store
	queue QueueStats
}

// NewCollector creates a metrics collector. queue may be nil when no
// refresh pipeline is running.
func NewCollector(st store.Store, queue QueueStats) *Collector {
	return &Collector{store: st, queue: queue}
}

// Collect gathers a snapshot of system metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{CollectedAt: now}

	stats, err := c.store.CacheStats(ctx, "", now)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: cache stats")
	}
	snap.CacheEntries = stats.TotalEntries
	snap.CacheHitRate = stats.HitRate
	snap.CacheAvgAgeHours = stats.AvgAgeHours
	snap.CacheByType = stats.ByType

	if c.queue != nil {
		snap.QueueDepth = c.queue.Depth()
		snap.QueueCapacity = c.queue.Capacity()
		if snap.QueueCapacity > 0 {
			snap.QueueSaturation = float64(snap.QueueDepth) / float64(snap.QueueCapacity)
		}
	}

	groups, err := c.store.ListSubmissionGroups(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list submission groups")
	}
	snap.BenchmarkCohorts = len(groups)
	for _, g := range groups {
		snap.BenchmarkSubmissions += g.Count
	}

	return snap, nil
}
