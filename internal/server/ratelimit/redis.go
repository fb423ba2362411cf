package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/safepass/internal/clock"
	rdb "github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter (INCR + EXPIRE) shared by every
// server instance pointing at the same Redis.
type RedisLimiter struct {
	client rdb.Cmdable
	clock  clock.Clock
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client rdb.Cmdable, c clock.Clock, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, clock: c, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.clock.Now()
	winStart := now.Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit: %w", err)
	}

	hits := incr.Val()
	res := Result{Allowed: hits <= l.max, Remaining: max(l.max-hits, 0)}
	if !res.Allowed {
		res.RetryAfter = winStart.Add(l.window).Sub(now)
	}
	return res, nil
}
