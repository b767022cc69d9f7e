package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Kind classifies a fetch failure. Exactly one kind applies per failure;
// the kind drives retry eligibility and the caller-facing error code.
type Kind uint8

// Failure kinds, ordered roughly by where in the pipeline they occur.
const (
	KindUnknown Kind = iota
	KindInvalidURL
	KindBlockedHost
	KindBlockedIP
	KindTooManyRedirects
	KindTimeout
	KindAborted
	KindRateLimited
	KindHTTPStatus
	KindSizeExceeded
	KindNetwork
)

var kindCodes = map[Kind]string{
	KindUnknown:          "unknown",
	KindInvalidURL:       "invalid_url",
	KindBlockedHost:      "blocked_host",
	KindBlockedIP:        "blocked_ip",
	KindTooManyRedirects: "too_many_redirects",
	KindTimeout:          "timeout",
	KindAborted:          "aborted",
	KindRateLimited:      "rate_limited",
	KindHTTPStatus:       "http_status",
	KindSizeExceeded:     "size_exceeded",
	KindNetwork:          "network_error",
}

// Code returns the stable machine-readable code for the kind.
func (k Kind) Code() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindUnknown]
}

// Error is the tagged failure type returned by every engine operation.
type Error struct {
	Kind       Kind
	Status     int           // set when Kind == KindHTTPStatus
	RetryAfter time.Duration // set when Kind == KindRateLimited
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind.Code(), e.Err)
	default:
		return e.Kind.Code()
	}
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the stable machine-readable code for consumers.
func (e *Error) Code() string {
	return e.Kind.Code()
}

// Retryable reports whether the retry policy may attempt again.
// Aborted is always terminal; 4xx statuses are terminal except 429,
// which surfaces as KindRateLimited before this is consulted.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimited:
		return true
	case KindHTTPStatus:
		return e.Status >= 500
	default:
		return false
	}
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsError extracts an *Error from an arbitrary error chain.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// classify maps an arbitrary transport-layer error onto the taxonomy.
// Context expirations are split: a deadline maps to KindTimeout, caller
// cancellation to KindAborted. The two must stay distinguishable even
// though both ride the same context mechanism.
func classify(ctx context.Context, err error) *Error {
	if fe, ok := AsError(err); ok {
		return fe
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// CheckRedirect and dial errors come back wrapped; prefer the
		// inner tagged error when one exists.
		if fe, ok := AsError(urlErr.Err); ok {
			return fe
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(KindTimeout, err, "request deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return wrapError(KindAborted, err, "request canceled")
	}
	// The request context may have expired without the transport
	// surfacing a context error type.
	if ctx != nil {
		switch ctx.Err() {
		case context.DeadlineExceeded:
			return wrapError(KindTimeout, err, "request deadline exceeded")
		case context.Canceled:
			return wrapError(KindAborted, err, "request canceled")
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return wrapError(KindTimeout, err, "network timeout")
		}
		return wrapError(KindNetwork, err, "network error")
	}
	if err != nil {
		return wrapError(KindNetwork, err, "request failed")
	}
	return newError(KindUnknown, "unclassified failure")
}

// abortedOrTimeout converts a fired context into the matching terminal
// error: deadline expiry is a timeout, anything else a caller abort.
func abortedOrTimeout(ctx context.Context) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, "deadline exceeded")
	}
	return newError(KindAborted, "canceled by caller")
}
