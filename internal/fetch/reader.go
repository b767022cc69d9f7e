package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// errBudgetExceeded is the sentinel the capped reader surfaces the
// moment the running byte counter passes the budget.
var errBudgetExceeded = errors.New("body byte budget exceeded")

// ResponseReader streams a response body under a strict byte budget and
// decodes it as UTF-8 incrementally, so multi-byte codepoints split
// across chunk boundaries reassemble correctly.
type ResponseReader struct {
	maxBytes int64
}

// NewResponseReader builds a reader with the given budget in bytes.
func NewResponseReader(maxBytes int64) *ResponseReader {
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}
	return &ResponseReader{maxBytes: maxBytes}
}

// Read consumes resp.Body and returns the decoded text plus the raw
// byte count. A Content-Length above the budget fails immediately and
// closes the body before reading a single byte, releasing the
// connection. Cancellation propagates into the stream: a fired context
// resolves as Aborted (or Timeout), never a hang.
func (r *ResponseReader) Read(ctx context.Context, resp *http.Response) (string, int64, error) {
	if resp.ContentLength > r.maxBytes {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		return "", 0, newError(KindSizeExceeded, "content length %d exceeds limit %d", resp.ContentLength, r.maxBytes)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return "", 0, nil
	}

	capped := &cappedReader{ctx: ctx, r: resp.Body, limit: r.maxBytes}
	decoded := transform.NewReader(capped, unicode.UTF8.NewDecoder())
	text, err := io.ReadAll(decoded)
	if err != nil {
		_ = resp.Body.Close()
		switch {
		case errors.Is(err, errBudgetExceeded):
			return "", capped.n, newError(KindSizeExceeded, "body exceeds limit of %d bytes", r.maxBytes)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return "", capped.n, abortedOrTimeout(ctx)
		default:
			if ctx.Err() != nil {
				return "", capped.n, abortedOrTimeout(ctx)
			}
			return "", capped.n, wrapError(KindNetwork, err, "read body")
		}
	}
	return string(text), capped.n, nil
}

// DecodeBytes is the bulk fallback for bodies that arrive fully
// buffered rather than as a stream. The byte budget still applies,
// enforced post-hoc.
func (r *ResponseReader) DecodeBytes(data []byte) (string, error) {
	if int64(len(data)) > r.maxBytes {
		return "", newError(KindSizeExceeded, "body of %d bytes exceeds limit %d", len(data), r.maxBytes)
	}
	text, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), data)
	if err != nil {
		return "", wrapError(KindUnknown, err, "decode body")
	}
	return string(text), nil
}

// cappedReader counts bytes off the wire and cuts the stream the
// instant the counter would pass the limit. Reads are trimmed so at
// most one byte past the budget is ever pulled from the source, keeping
// memory bounded regardless of remote response size.
type cappedReader struct {
	ctx   context.Context
	r     io.Reader
	limit int64
	n     int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	if c.n > c.limit {
		return 0, errBudgetExceeded
	}
	if allowed := c.limit - c.n + 1; int64(len(p)) > allowed {
		p = p[:allowed]
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.limit {
		return n, errBudgetExceeded
	}
	return n, err //nolint:wrapcheck
}
