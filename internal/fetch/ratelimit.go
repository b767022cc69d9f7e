package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter applies an optional per-host QPS cap so batch callers
// cannot hammer a single origin. A nil limiter means no politeness
// delay at all.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      rate.Limit
	burst    int
}

func newHostLimiter(qps float64) *hostLimiter {
	if qps <= 0 {
		return nil
	}
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		qps:      rate.Limit(qps),
		burst:    1,
	}
}

// Wait blocks until a token is available for host, respecting the
// context. Nil receivers never block.
func (l *hostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.qps, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return abortedOrTimeout(ctx)
		}
		// Wait refuses up front when the delay cannot fit before the
		// deadline; ctx.Err() is still nil then, but the failure is
		// deadline-bound, not a caller abort.
		return wrapError(KindTimeout, err, "rate limit wait for %s exceeds deadline", host)
	}
	return nil
}
