package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one token bucket per key in process memory. Buckets of
// idle keys are evicted by go-cache. It is the fallback when no Redis is
// configured and is only accurate for a single instance.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets *gocache.Cache
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewMemoryLimiter allows max hits per window with bursts of up to max.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		buckets: gocache.New(2*window, window),
		limit:   rate.Limit(float64(max) / window.Seconds()),
		burst:   max,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		return v.(*rate.Limiter)
	}
	b := rate.NewLimiter(l.limit, l.burst)
	l.buckets.SetDefault(key, b)
	return b
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	b := l.bucket(key)
	now := l.now()

	r := b.ReserveN(now, 1)
	if !r.OK() {
		return Result{Allowed: false, RetryAfter: time.Duration(math.MaxInt64)}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: delay}, nil
	}
	return Result{Allowed: true, Remaining: int64(math.Floor(b.TokensAt(now)))}, nil
}
