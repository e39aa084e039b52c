package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces outbound upstream calls with a token bucket.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows bursts of maxTokens calls and refills one token
// every refillInterval.
func NewRateLimiter(maxTokens int, refillInterval time.Duration) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(refillInterval), maxTokens)}
}

// Wait blocks until a token is available or ctx is done. It fails fast when
// the deadline would pass before the next token.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
