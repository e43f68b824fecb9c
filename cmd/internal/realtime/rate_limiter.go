package realtime

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter bounds inbound events on one connection: a burst of limit
// events, refilled at limit per window.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter falls back to the package defaults when inputs are invalid.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
}

// Allow reports whether an event at now is permitted.
func (r *RateLimiter) Allow(now time.Time) bool {
	return r.lim.AllowN(now, 1)
}
