package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestErrorCodesAreStable(t *testing.T) {
	t.Parallel()
	want := map[Kind]string{
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
	for kind, code := range want {
		require.Equal(t, code, kind.Code())
	}
	require.Equal(t, "unknown", Kind(200).Code())
}

func TestRetryableMatrix(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		err       *Error
		retryable bool
	}{
		{"network", &Error{Kind: KindNetwork}, true},
		{"timeout", &Error{Kind: KindTimeout}, true},
		{"rate limited", &Error{Kind: KindRateLimited, Status: 429}, true},
		{"server error", &Error{Kind: KindHTTPStatus, Status: 503}, true},
		{"not found", &Error{Kind: KindHTTPStatus, Status: 404}, false},
		{"forbidden", &Error{Kind: KindHTTPStatus, Status: 403}, false},
		{"aborted", &Error{Kind: KindAborted}, false},
		{"invalid url", &Error{Kind: KindInvalidURL}, false},
		{"blocked ip", &Error{Kind: KindBlockedIP}, false},
		{"size exceeded", &Error{Kind: KindSizeExceeded}, false},
		{"unknown", &Error{Kind: KindUnknown}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.retryable, tc.err.Retryable())
		})
	}
}

func TestErrorWrappingAndExtraction(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset")
	fe := wrapError(KindNetwork, cause, "dial failed")

	require.ErrorIs(t, fe, cause)
	require.Contains(t, fe.Error(), "network_error")
	require.Contains(t, fe.Error(), "dial failed")

	wrapped := fmt.Errorf("outer: %w", fe)
	got, ok := AsError(wrapped)
	require.True(t, ok)
	require.Equal(t, KindNetwork, got.Kind)
}

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

var _ net.Error = timeoutNetError{}

func TestClassifyDistinguishesAbortFromTimeout(t *testing.T) {
	t.Parallel()

	t.Run("caller cancellation is aborted", func(t *testing.T) {
		t.Parallel()
		fe := classify(context.Background(), context.Canceled)
		require.Equal(t, KindAborted, fe.Kind)
	})

	t.Run("deadline expiry is timeout", func(t *testing.T) {
		t.Parallel()
		fe := classify(context.Background(), context.DeadlineExceeded)
		require.Equal(t, KindTimeout, fe.Kind)
	})

	t.Run("expired context wins over opaque transport error", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		fe := classify(ctx, errors.New("use of closed network connection"))
		require.Equal(t, KindTimeout, fe.Kind)
	})

	t.Run("net timeout error", func(t *testing.T) {
		t.Parallel()
		fe := classify(context.Background(), timeoutNetError{})
		require.Equal(t, KindTimeout, fe.Kind)
	})

	t.Run("plain error is network class", func(t *testing.T) {
		t.Parallel()
		fe := classify(context.Background(), errors.New("boom"))
		require.Equal(t, KindNetwork, fe.Kind)
	})

	t.Run("tagged error passes through", func(t *testing.T) {
		t.Parallel()
		orig := newError(KindBlockedIP, "nope")
		fe := classify(context.Background(), orig)
		require.Same(t, orig, fe)
	})
}
