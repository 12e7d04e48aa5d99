// Package resilience wraps calls to flaky collaborators, retrying transient
// failures with backoff and failing fast through a circuit breaker when an
// upstream is degraded.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff between attempts.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the computed delay.
	MaxBackoff time.Duration
	// Multiplier grows the delay after each failed attempt.
	Multiplier float64
	// JitterFraction randomizes each delay by +/- this fraction.
	JitterFraction float64
	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means IsTransient.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig is tuned for background analysis recomputes: a couple
// of quick retries, never more than a short stall per job.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     20 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// Do runs fn until it succeeds, the error is not retryable, attempts run
// out, or ctx is canceled. The last error is returned.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == attempts-1 {
			return err
		}
		if !sleep(ctx, cfg.delay(attempt)) {
			return err
		}
	}
	return err
}

// delay computes the backoff for the attempt that just failed (0-based).
func (cfg RetryConfig) delay(attempt int) time.Duration {
	base := cfg.InitialBackoff
	if base <= 0 {
		base = time.Second
	}
	ceil := cfg.MaxBackoff
	if ceil <= 0 {
		ceil = 20 * time.Second
	}
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 2.0
	}

	d := math.Min(float64(base)*math.Pow(mult, float64(attempt)), float64(ceil))
	if cfg.JitterFraction > 0 {
		d += d * cfg.JitterFraction * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// sleep waits for d, returning false if ctx is canceled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
