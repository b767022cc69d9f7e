// Package fetch implements the resilient outbound fetch engine: URL and
// SSRF validation, DNS-rebinding defense, redirect re-validation,
// retry with backoff, bounded-memory streaming reads, result caching,
// and in-flight request coalescing.
package fetch

import (
	"context"
	"net/http"
	"time"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Doer issues a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transform converts a raw response body into the cacheable result the
// caller wants. It is owned by the content-extraction layer; the engine
// treats it as opaque.
type Transform func(ctx context.Context, body string) (string, error)

// Request captures everything needed to fetch a URL. It is immutable
// once issued: the engine copies what it keeps and never mutates it.
type Request struct {
	URL     string
	Header  http.Header
	Vary    map[string]string // output options that shape the cached result
	Timeout time.Duration     // zero means Config.DefaultTimeout
	Retries int               // zero means Config.DefaultRetries
}

// Result is the outcome of a successful fetch.
type Result struct {
	Data      string
	FromCache bool
	URL       string // normalized URL actually fetched
	FetchedAt time.Time
}

// Outcome pairs a Result with its error for all-settled batch calls.
type Outcome struct {
	Result Result
	Err    error
}

// Config holds every engine tunable. Values are injected by the config
// loader; the engine only applies clamps and fallbacks.
type Config struct {
	Namespace       string
	UserAgent       string
	DefaultTimeout  time.Duration
	DefaultRetries  int
	MaxRedirects    int
	MaxBodyBytes    int64
	MaxURLLength    int
	CacheTTL        time.Duration
	CacheMaxKeys    int
	CacheMaxContent int
	BlockedHosts    []string
	Concurrency     int
	PerHostQPS      float64
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = "fetch"
	}
	if c.UserAgent == "" {
		c.UserAgent = "fetchguard/0.1"
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.DefaultRetries <= 0 {
		c.DefaultRetries = 3
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 5 * 1024 * 1024
	}
	if c.MaxURLLength <= 0 {
		c.MaxURLLength = 2048
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 15 * time.Minute
	}
	if c.CacheMaxKeys <= 0 {
		c.CacheMaxKeys = 1000
	}
	if c.CacheMaxContent <= 0 {
		c.CacheMaxContent = 1024 * 1024
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}
