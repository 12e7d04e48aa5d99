package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/marketlens-ai/marketlens/internal/config"
	"github.com/marketlens-ai/marketlens/internal/model"
	"github.com/marketlens-ai/marketlens/internal/resilience"
)

// Refresher recomputes an analysis for a stale entry. Implementations are
// expected to write the fresh result back through IntelligentCache.Set.
type Refresher interface {
	Refresh(ctx context.Context, key string, entry model.CacheEntry, cctx model.CacheContext) error
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, key string, entry model.CacheEntry, cctx model.CacheContext) error

func (f RefresherFunc) Refresh(ctx context.Context, key string, entry model.CacheEntry, cctx model.CacheContext) error {
	return f(ctx, key, entry, cctx)
}

// NoopRefresher accepts refresh requests and does nothing. Used when no
// recompute collaborator is wired.
type NoopRefresher struct{}

func (NoopRefresher) Refresh(context.Context, string, model.CacheEntry, model.CacheContext) error {
	return nil
}

type refreshJob struct {
	key   string
	entry model.CacheEntry
	cctx  model.CacheContext
}

// RefreshQueue runs background recomputes for stale cache entries.
//
// Concurrent Gets may both decide to refresh the same key; the queue makes
// that cheap rather than exactly-once: a per-key rate limiter drops repeat
// requests inside the cooldown window, and singleflight collapses
// concurrent in-flight refreshes of the same key. A full queue drops the
// request; refresh is advisory and the stale entry was already served.
type RefreshQueue struct {
	refresher Refresher
	jobs      chan refreshJob
	workers   int
	retryCfg  resilience.RetryConfig

	group singleflight.Group

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cooldown time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefreshQueue builds a stopped queue; call Start to launch workers.
func NewRefreshQueue(cfg config.RefreshConfig, r Refresher) *RefreshQueue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	cooldown := time.Duration(cfg.PerKeyCooldownS) * time.Second
	if cooldown <= 0 {
		cooldown = 10 * time.Minute
	}

	retryCfg := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.MaxAttempts
	}

	return &RefreshQueue{
		refresher: r,
		jobs:      make(chan refreshJob, queueSize),
		workers:   workers,
		retryCfg:  retryCfg,
		limiters:  make(map[string]*rate.Limiter),
		cooldown:  cooldown,
	}
}

// Start launches the worker pool.
func (q *RefreshQueue) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.work(ctx)
		}()
	}
}

// Stop cancels in-flight refreshes and waits for workers to exit.
// Pending queued jobs are discarded.
func (q *RefreshQueue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Enqueue schedules a background refresh for key. Fire-and-forget: requests
// inside the per-key cooldown or arriving at a full queue are dropped.
func (q *RefreshQueue) Enqueue(key string, entry model.CacheEntry, cctx model.CacheContext) {
	if !q.limiter(key).Allow() {
		return
	}

	select {
	case q.jobs <- refreshJob{key: key, entry: entry, cctx: cctx}:
	default:
		zap.L().Warn("refresh: queue full, dropping request", zap.String("key", key))
	}
}

// Depth reports the number of queued jobs.
func (q *RefreshQueue) Depth() int { return len(q.jobs) }

// Capacity reports the queue's buffer size.
func (q *RefreshQueue) Capacity() int { return cap(q.jobs) }

func (q *RefreshQueue) limiter(key string) *rate.Limiter {
	q.mu.Lock()
	defer q.mu.Unlock()

	lim, ok := q.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(q.cooldown), 1)
		q.limiters[key] = lim
	}
	return lim
}

func (q *RefreshQueue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.run(ctx, job)
		}
	}
}

// run executes one refresh. Failures are logged here and never propagate;
// the caller that triggered the refresh has already been answered.
func (q *RefreshQueue) run(ctx context.Context, job refreshJob) {
	_, err, _ := q.group.Do(job.key, func() (_ any, err error) {
		// A panicking refresher must not take the worker down.
		defer func() {
			if r := recover(); r != nil {
				err = eris.Errorf("refresh: panic: %v", r)
			}
		}()
		err = resilience.Do(ctx, q.retryCfg, func(ctx context.Context) error {
			return q.refresher.Refresh(ctx, job.key, job.entry, job.cctx)
		})
		return nil, err
	})
	if err != nil {
		zap.L().Error("refresh: recompute failed",
			zap.String("key", job.key),
			zap.String("business_id", job.entry.BusinessID),
			zap.Error(err))
		return
	}
	zap.L().Debug("refresh: recompute complete", zap.String("key", job.key))
}
