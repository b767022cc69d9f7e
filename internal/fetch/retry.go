package fetch

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/fetchguard/fetchguard/internal/metrics"
)

const (
	minRetries        = 1
	maxRetries        = 10
	baseBackoff       = 1000 * time.Millisecond
	maxBackoff        = 10000 * time.Millisecond
	rateLimitWaitCap  = 30 * time.Second
	defaultRetryAfter = 60 * time.Second
)

// RetryPolicy drives bounded, cancellable retry attempts with jittered
// exponential backoff. Rate-limited responses wait out their Retry-After
// value (capped) instead of the computed backoff.
type RetryPolicy struct {
	maxAttempts int

	// sleep is swappable so tests can observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy builds a policy with the attempt budget clamped to
// [1,10].
func NewRetryPolicy(retries int) *RetryPolicy {
	if retries < minRetries {
		retries = minRetries
	}
	if retries > maxRetries {
		retries = maxRetries
	}
	return &RetryPolicy{
		maxAttempts: retries,
		sleep:       sleepCtx,
	}
}

// Run executes attempt until it succeeds, a terminal failure occurs, or
// the attempt budget is exhausted. Cancellation is honored before each
// attempt (without consuming one) and during every wait.
func (p *RetryPolicy) Run(ctx context.Context, attempt func(ctx context.Context) error) error {
	var lastErr *Error
	for n := 1; n <= p.maxAttempts; n++ {
		if ctx.Err() != nil {
			return abortedOrTimeout(ctx)
		}
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		fe := classify(ctx, err)
		lastErr = fe
		if fe.Kind == KindAborted {
			return fe
		}
		if !fe.Retryable() {
			return fe
		}
		if n == p.maxAttempts {
			break
		}
		metrics.RecordRetry()
		if waitErr := p.sleep(ctx, p.delayFor(fe, n)); waitErr != nil {
			return waitErr
		}
	}
	return &Error{
		Kind:       lastErr.Kind,
		Status:     lastErr.Status,
		RetryAfter: lastErr.RetryAfter,
		Message:    fmt.Sprintf("giving up after %d attempts", p.maxAttempts),
		Err:        lastErr,
	}
}

// delayFor computes the wait before the next attempt. A 429 waits its
// Retry-After directly (default 60s when missing or unparseable, capped
// at 30s) and is exempt from jitter; everything else gets exponential
// backoff with symmetric ±25% jitter.
func (p *RetryPolicy) delayFor(fe *Error, attempt int) time.Duration {
	if fe.Kind == KindRateLimited {
		wait := fe.RetryAfter
		if wait <= 0 {
			wait = defaultRetryAfter
		}
		if wait > rateLimitWaitCap {
			wait = rateLimitWaitCap
		}
		return wait
	}
	delay := float64(baseBackoff) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}
	// jitter in [-25%, +25%]
	jittered := delay * (0.75 + 0.5*rand.Float64())
	return time.Duration(jittered)
}

// sleepCtx waits for d or until ctx fires, whichever comes first. A
// fired context resolves the wait as Aborted (or Timeout for deadline
// expiry), never as a resumed attempt.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return abortedOrTimeout(ctx)
	case <-timer.C:
		return nil
	}
}
