package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deusflow/newspulse/internal/logger"
)

// ErrBudgetExhausted is returned once the daily request budget is spent.
var ErrBudgetExhausted = errors.New("ratelimit: daily budget exhausted")

// AIRateLimiter paces summarizer calls and caps them per day.
type AIRateLimiter struct {
	mu          sync.Mutex
	pacer       *rate.Limiter
	used        int
	maxPerDay   int
	resetTime   time.Time
	cacheHits   int
	cacheMisses int
	now         func() time.Time
}

// NewAIRateLimiter allows perMinute requests per minute (0 = unpaced) and
// maxPerDay requests per rolling day (0 = unlimited).
func NewAIRateLimiter(perMinute, maxPerDay int) *AIRateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	rl := &AIRateLimiter{
		pacer:     rate.NewLimiter(limit, 1),
		maxPerDay: maxPerDay,
		now:       time.Now,
	}
	rl.resetTime = rl.now().Add(24 * time.Hour)
	return rl
}

// Acquire reserves one request, waiting for the pacer if needed.
func (rl *AIRateLimiter) Acquire(ctx context.Context) error {
	rl.mu.Lock()
	rl.checkReset()
	if rl.maxPerDay > 0 && rl.used >= rl.maxPerDay {
		rl.mu.Unlock()
		logger.Warn("Summarizer daily budget reached", "used", rl.used, "limit", rl.maxPerDay)
		return ErrBudgetExhausted
	}
	rl.used++
	rl.cacheMisses++
	rl.mu.Unlock()

	if err := rl.pacer.Wait(ctx); err != nil {
		rl.mu.Lock()
		rl.used--
		rl.cacheMisses--
		rl.mu.Unlock()
		return err
	}
	return nil
}

// RecordCacheHit counts a request served without calling the summarizer.
func (rl *AIRateLimiter) RecordCacheHit() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cacheHits++
}

// GetCacheHitRate returns cache hit rate percentage
func (rl *AIRateLimiter) GetCacheHitRate() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.hitRate()
}

func (rl *AIRateLimiter) hitRate() float64 {
	total := rl.cacheHits + rl.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(rl.cacheHits) / float64(total) * 100
}

// GetStats returns current rate limiter statistics
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"used":           rl.used,
		"limit":          rl.maxPerDay,
		"cache_hits":     rl.cacheHits,
		"cache_misses":   rl.cacheMisses,
		"cache_hit_rate": rl.hitRate(),
		"reset_time":     rl.resetTime,
	}
}

// checkReset resets counters if reset time has passed
func (rl *AIRateLimiter) checkReset() {
	now := rl.now()
	if now.After(rl.resetTime) {
		logger.Info("Resetting summarizer budget", "used", rl.used, "cache_hits", rl.cacheHits)
		rl.used = 0
		rl.cacheHits = 0
		rl.cacheMisses = 0
		rl.resetTime = now.Add(24 * time.Hour)
	}
}
