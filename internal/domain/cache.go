package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market metadata lookups by slug.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, slug string) (Market, error)
	Invalidate(ctx context.Context, slug string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
