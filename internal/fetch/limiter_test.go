package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterClampsCapacity(t *testing.T) {
	t.Parallel()
	require.Equal(t, 1, cap(NewLimiter(0).tokens))
	require.Equal(t, 1, cap(NewLimiter(-3).tokens))
	require.Equal(t, 10, cap(NewLimiter(99).tokens))
	require.Equal(t, 4, cap(NewLimiter(4).tokens))
}

func TestLimiterBlocksAtCapacity(t *testing.T) {
	t.Parallel()
	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	fe, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindTimeout, fe.Kind)

	l.Release()
	require.NoError(t, l.Acquire(context.Background()))
}

func TestFetchAllReturnsOutcomesInInputOrder(t *testing.T) {
	t.Parallel()
	doer := &scriptedDoer{fn: func(req *http.Request) (*http.Response, error) {
		return textResponse(http.StatusOK, "body of "+req.URL.Path), nil
	}}
	p := newTestPipeline(t, doer)

	reqs := make([]Request, 6)
	for i := range reqs {
		reqs[i] = Request{URL: fmt.Sprintf("https://example.com/page/%d", i)}
	}

	outcomes := p.FetchAll(context.Background(), reqs, nil)
	require.Len(t, outcomes, len(reqs))
	for i, out := range outcomes {
		require.NoError(t, out.Err, "request %d", i)
		require.Equal(t, fmt.Sprintf("body of /page/%d", i), out.Result.Data)
	}
}

func TestFetchAllIsAllSettled(t *testing.T) {
	t.Parallel()
	doer := &scriptedDoer{fn: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/broken" {
			return textResponse(http.StatusInternalServerError, "boom"), nil
		}
		return textResponse(http.StatusOK, "fine"), nil
	}}
	p := newTestPipeline(t, doer)

	reqs := []Request{
		{URL: "https://example.com/good"},
		{URL: "http://10.0.0.1/private"}, // fails validation
		{URL: "https://example.com/broken"},
		{URL: "https://example.com/also-good"},
	}

	outcomes := p.FetchAll(context.Background(), reqs, nil)
	require.Len(t, outcomes, 4)

	require.NoError(t, outcomes[0].Err)
	require.Equal(t, "fine", outcomes[0].Result.Data)

	fe, ok := AsError(outcomes[1].Err)
	require.True(t, ok)
	require.Equal(t, KindBlockedIP, fe.Kind)

	fe, ok = AsError(outcomes[2].Err)
	require.True(t, ok)
	require.Equal(t, KindHTTPStatus, fe.Kind)
	require.Equal(t, http.StatusInternalServerError, fe.Status)

	require.NoError(t, outcomes[3].Err)
}

func TestFetchAllHonorsConcurrencyBound(t *testing.T) {
	t.Parallel()
	var inFlight, peak atomic.Int64
	doer := &scriptedDoer{fn: func(*http.Request) (*http.Response, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return textResponse(http.StatusOK, "ok"), nil
	}}
	p := New(Config{Namespace: "test", Concurrency: 2, DefaultRetries: 1},
		WithClient(doer), WithClock(newFakeClock()))

	reqs := make([]Request, 8)
	for i := range reqs {
		reqs[i] = Request{URL: fmt.Sprintf("https://example.com/item/%d", i)}
	}

	outcomes := p.FetchAll(context.Background(), reqs, nil)
	for i, out := range outcomes {
		require.NoError(t, out.Err, "request %d", i)
	}
	require.LessOrEqual(t, peak.Load(), int64(2), "more requests in flight than the limit allows")
}
