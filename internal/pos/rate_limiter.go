package pos

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter spaces outgoing requests evenly; burst is one so calls never
// bunch up after an idle period.
type RateLimiter struct {
	lim *rate.Limiter
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// WaitTurn blocks until the next request slot or until ctx is done.
func (r *RateLimiter) WaitTurn(ctx context.Context) error {
	return r.lim.Wait(ctx)
}
