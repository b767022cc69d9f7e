package fetch

import (
	"context"
	"sync"
)

const (
	minConcurrency = 1
	maxConcurrency = 10
)

// Limiter bounds how many pipeline invocations run simultaneously.
// Blocked callers are admitted in the order they started waiting.
type Limiter struct {
	tokens chan struct{}
}

// NewLimiter builds a Limiter with the limit clamped to [1,10].
func NewLimiter(limit int) *Limiter {
	if limit < minConcurrency {
		limit = minConcurrency
	}
	if limit > maxConcurrency {
		limit = maxConcurrency
	}
	return &Limiter{tokens: make(chan struct{}, limit)}
}

// Acquire blocks until a slot frees up or the context fires.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return abortedOrTimeout(ctx)
	}
}

// Release frees a slot, admitting the next queued waiter.
func (l *Limiter) Release() {
	<-l.tokens
}

// FetchAll runs every request through the pipeline under the
// concurrency limit and returns all outcomes in input order. A failing
// request never cancels its siblings: each slot gets its own success or
// error (all-settled semantics).
func (p *Pipeline) FetchAll(ctx context.Context, reqs []Request, transform Transform) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			if err := p.batch.Acquire(ctx); err != nil {
				outcomes[i] = Outcome{Err: err}
				return
			}
			defer p.batch.Release()
			res, err := p.ExecuteFetch(ctx, req, transform)
			outcomes[i] = Outcome{Result: res, Err: err}
		}(i, req)
	}
	wg.Wait()
	return outcomes
}
