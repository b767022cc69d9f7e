package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fetchguard/fetchguard/internal/metrics"
)

// Pipeline composes validation, caching, coalescing, retries, and the
// guarded transport into one entry point.
type Pipeline struct {
	cfg       Config
	validator *Validator
	cache     *RequestCache
	reader    *ResponseReader
	client    Doer
	clock     Clock
	logger    *zap.Logger
	limiter   *hostLimiter
	batch     *Limiter
	resolver  *SafeResolver
	group     singleflight.Group
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClient replaces the default guarded HTTP client. The caller owns
// redirect and dial safety when overriding; meant for tests.
func WithClient(client Doer) Option {
	return func(p *Pipeline) { p.client = client }
}

// WithResolver swaps the DNS resolver feeding the guarded dialer.
func WithResolver(resolver Resolver) Option {
	return func(p *Pipeline) { p.resolver = NewSafeResolver(resolver) }
}

// WithClock injects a clock, used by tests to control TTL expiry.
func WithClock(clock Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithLogger attaches a zap logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New builds a Pipeline from cfg. Zero-valued tunables fall back to
// engine defaults; the attempt and concurrency budgets are clamped.
func New(cfg Config, opts ...Option) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:       cfg,
		validator: NewValidator(cfg.MaxURLLength, cfg.BlockedHosts),
		reader:    NewResponseReader(cfg.MaxBodyBytes),
		clock:     realClock{},
		logger:    zap.NewNop(),
		limiter:   newHostLimiter(cfg.PerHostQPS),
		batch:     NewLimiter(cfg.Concurrency),
		resolver:  NewSafeResolver(NewNetResolver()),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache = NewRequestCache(cfg.CacheTTL, cfg.CacheMaxKeys, cfg.CacheMaxContent, p.clock)
	if p.client == nil {
		p.client = p.buildClient()
	}
	return p
}

// buildClient assembles the guarded http.Client: connections dial only
// addresses vetted at connection time, and every redirect hop is
// re-validated before it is followed.
func (p *Pipeline) buildClient() *http.Client {
	guard := newRedirectGuard(p.validator, p.cfg.MaxRedirects)
	// No proxy support: an ambient HTTP_PROXY would tunnel requests past
	// the dialer's address vetting, so every connection dials directly.
	transport := &http.Transport{
		DialContext:           safeDialContext(p.resolver, &net.Dialer{Timeout: 10 * time.Second}),
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport:     transport,
		CheckRedirect: guard.check,
	}
}

// ValidateURL normalizes and safety-checks a URL without fetching it.
// Other subsystems use it as a pre-check.
func (p *Pipeline) ValidateURL(raw string) (string, error) {
	return p.validator.Validate(raw)
}

// CacheStats exposes the cache counters.
func (p *Pipeline) CacheStats() CacheStats {
	return p.cache.Stats()
}

// rawFetch is the shared value produced by the single winning network
// fetch for a dedupe key. Waiters apply their own transforms to it.
type rawFetch struct {
	body      string
	fetchedAt time.Time
}

// ExecuteFetch validates the URL, consults the cache, coalesces with
// any identical in-flight fetch, and otherwise drives retried attempts
// through the guarded transport. The transform runs per caller on the
// shared raw body; the transformed result lands in the cache under the
// caller's vary-aware key.
func (p *Pipeline) ExecuteFetch(ctx context.Context, req Request, transform Transform) (Result, error) {
	start := time.Now()

	normalized, err := p.validator.Validate(req.URL)
	if err != nil {
		fe := classify(ctx, err)
		metrics.RecordRequest(fe.Code())
		return Result{}, fe
	}

	cacheKey := CacheKey(p.cfg.Namespace, normalized, varyFrom(req.Header, req.Vary))
	if entry, ok := p.cache.Get(cacheKey); ok {
		metrics.RecordRequest("cache_hit")
		return Result{
			Data:      entry.Content,
			FromCache: true,
			URL:       normalized,
			FetchedAt: entry.FetchedAt,
		}, nil
	}

	dedupeKey := DedupeKey(p.cfg.Namespace, normalized)
	ch := p.group.DoChan(dedupeKey, func() (any, error) {
		return p.fetchOnce(ctx, req, normalized)
	})

	var raw *rawFetch
	select {
	case <-ctx.Done():
		fe := abortedOrTimeout(ctx)
		metrics.RecordRequest(fe.Code())
		return Result{}, fe
	case res := <-ch:
		if res.Shared {
			metrics.RecordDedupeShared()
		}
		if res.Err != nil {
			fe := classify(ctx, res.Err)
			metrics.RecordRequest(fe.Code())
			p.logger.Debug("fetch failed",
				zap.String("url", normalized),
				zap.String("code", fe.Code()),
				zap.Error(fe),
			)
			return Result{}, fe
		}
		raw = res.Val.(*rawFetch)
	}

	data := raw.body
	if transform != nil {
		data, err = transform(ctx, raw.body)
		if err != nil {
			fe := wrapError(KindUnknown, err, "transform failed")
			metrics.RecordRequest(fe.Code())
			return Result{}, fe
		}
	}
	p.cache.Set(cacheKey, data)

	metrics.RecordRequest("ok")
	metrics.ObserveFetchDuration(time.Since(start))
	p.logger.Debug("fetch completed",
		zap.String("url", normalized),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return Result{
		Data:      data,
		FromCache: false,
		URL:       normalized,
		FetchedAt: raw.fetchedAt,
	}, nil
}

// fetchOnce is the single network fetch for a dedupe key: the retry
// policy driving guarded attempts. Exactly one of these runs per key at
// any instant; singleflight removes its registry entry when this
// settles, success or failure, so later calls repeat the work instead
// of replaying a stale outcome.
func (p *Pipeline) fetchOnce(ctx context.Context, req Request, normalized string) (*rawFetch, error) {
	metrics.IncInflight()
	defer metrics.DecInflight()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	retries := req.Retries
	if retries <= 0 {
		retries = p.cfg.DefaultRetries
	}
	policy := NewRetryPolicy(retries)

	var out *rawFetch
	err := policy.Run(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := p.limiter.Wait(attemptCtx, hostOf(normalized)); err != nil {
			return err
		}

		metrics.RecordAttempt()
		httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, normalized, nil)
		if err != nil {
			return wrapError(KindInvalidURL, err, "build request")
		}
		for name, values := range req.Header {
			for _, value := range values {
				httpReq.Header.Add(name, value)
			}
		}
		if httpReq.Header.Get("User-Agent") == "" {
			httpReq.Header.Set("User-Agent", p.cfg.UserAgent)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return classify(attemptCtx, err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			drainClose(resp.Body)
			return &Error{
				Kind:       KindRateLimited,
				Status:     resp.StatusCode,
				RetryAfter: retryAfter,
				Message:    "rate limited by upstream",
			}
		case resp.StatusCode >= 400:
			drainClose(resp.Body)
			return &Error{
				Kind:    KindHTTPStatus,
				Status:  resp.StatusCode,
				Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			}
		}

		body, byteCount, err := p.reader.Read(attemptCtx, resp)
		metrics.RecordBytes(byteCount)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()

		out = &rawFetch{body: body, fetchedAt: p.clock.Now()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parseRetryAfter reads a Retry-After value in seconds. Missing or
// unparseable values return zero; the retry policy substitutes its
// default in that case.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// drainClose discards a little of the body before closing so the
// connection can be reused.
func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

func hostOf(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil {
		return normalized
	}
	return u.Hostname()
}

// realClock is the default Clock when none is injected.
type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}
