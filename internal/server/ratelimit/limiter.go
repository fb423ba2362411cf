// Package ratelimit throttles the abuse-prone endpoints (login, registration,
// code and reset issuance) per client key.
package ratelimit

import (
	"context"
	"time"
)

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter admits or rejects one hit for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Noop admits everything. It is used when rate limiting is disabled.
type Noop struct{}

func (Noop) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true, Remaining: -1}, nil
}
