package api

import (
	"sync"

	"erpsync/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// RateLimiter hands out one token bucket per client key. HTTP and gRPC share
// a single instance so a client cannot double its budget by switching transport.
type RateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	cfg      config.APIRateLimitConfig
}

func NewRateLimiter(cfg config.APIRateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg}
}

func (l *RateLimiter) enabled() bool {
	return l != nil && l.cfg.RPS > 0
}

// allow reports whether a request for key fits in its bucket.
func (l *RateLimiter) allow(key string) bool {
	if !l.enabled() {
		return true
	}
	return l.getLimiter(key).Allow()
}

func (l *RateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
