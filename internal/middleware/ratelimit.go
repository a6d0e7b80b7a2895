package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

// RateLimiter keeps one token bucket per client IP. Idle buckets expire out
// of the cache so the map does not grow without bound.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
}

func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: cache.New(10*time.Minute, 15*time.Minute),
	}
}

// PerMinute builds a limiter allowing n requests a minute with a burst of n.
func PerMinute(n int) *RateLimiter {
	return NewRateLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Get(key); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		// Lost the race to another request from the same client.
		if v, ok := rl.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			_ = c.Error(apperrors.TooManyRequests())
			c.Abort()
			return
		}
		c.Next()
	}
}
