package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fetchguard/fetchguard/internal/archive"
	"github.com/fetchguard/fetchguard/internal/audit"
	"github.com/fetchguard/fetchguard/internal/fetch"
	"github.com/fetchguard/fetchguard/internal/hash/sha256"
	"github.com/fetchguard/fetchguard/internal/publisher"
)

type fetchRequest struct {
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers"`
	Options        map[string]string `json:"options"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Retries        int               `json:"retries"`
}

type fetchResponse struct {
	URL       string    `json:"url"`
	Data      string    `json:"data"`
	FromCache bool      `json:"from_cache"`
	FetchedAt time.Time `json:"fetched_at"`
}

type batchRequest struct {
	Requests []fetchRequest `json:"requests"`
}

type batchItem struct {
	Result *fetchResponse `json:"result,omitempty"`
	Error  *errorBody     `json:"error,omitempty"`
}

type errorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func (r fetchRequest) toEngine() fetch.Request {
	header := http.Header{}
	for name, value := range r.Headers {
		header.Set(name, value)
	}
	if len(header) == 0 {
		header = nil
	}
	return fetch.Request{
		URL:     r.URL,
		Header:  header,
		Vary:    r.Options,
		Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		Retries: r.Retries,
	}
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON", 0)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url is required", 0)
		return
	}

	start := s.clock.Now()
	res, err := s.engine.ExecuteFetch(r.Context(), req.toEngine(), nil)
	s.recordOutcome(r.Context(), req.URL, res, err, time.Since(start))
	if err != nil {
		writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fetchResponse{
		URL:       res.URL,
		Data:      res.Data,
		FromCache: res.FromCache,
		FetchedAt: res.FetchedAt,
	})
}

func (s *Server) handleFetchBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON", 0)
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "requests is required", 0)
		return
	}
	if len(req.Requests) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many requests in one batch", 0)
		return
	}

	engineReqs := make([]fetch.Request, len(req.Requests))
	for i, fr := range req.Requests {
		engineReqs[i] = fr.toEngine()
	}

	start := s.clock.Now()
	outcomes := s.engine.FetchAll(r.Context(), engineReqs, nil)
	elapsed := time.Since(start)

	items := make([]batchItem, len(outcomes))
	for i, out := range outcomes {
		s.recordOutcome(r.Context(), req.Requests[i].URL, out.Result, out.Err, elapsed)
		if out.Err != nil {
			items[i] = batchItem{Error: toErrorBody(out.Err)}
			continue
		}
		items[i] = batchItem{Result: &fetchResponse{
			URL:       out.Result.URL,
			Data:      out.Result.Data,
			FromCache: out.Result.FromCache,
			FetchedAt: out.Result.FetchedAt,
		}}
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": items})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url query parameter is required", 0)
		return
	}
	normalized, err := s.engine.ValidateURL(raw)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": normalized})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.engine.CacheStats()
	writeJSON(w, http.StatusOK, map[string]uint64{
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"sets":      stats.Sets,
		"evictions": stats.Evictions,
		"skips":     stats.Skips,
	})
}

// recordOutcome runs the post-fetch hooks: archive the body, persist an
// audit record, and publish a completion event. Hooks are best-effort;
// a failing provider is logged and never fails the fetch itself.
func (s *Server) recordOutcome(ctx context.Context, rawURL string, res fetch.Result, fetchErr error, elapsed time.Duration) {
	id, err := s.idGen.NewID()
	if err != nil {
		s.logger.Warn("audit id generation failed", zap.Error(err))
		return
	}

	code := "ok"
	status := 0
	if fetchErr != nil {
		if fe, ok := fetch.AsError(fetchErr); ok {
			code = fe.Code()
			status = fe.Status
		} else {
			code = "unknown"
		}
	}

	url := res.URL
	if url == "" {
		url = rawURL
	}
	fetchedAt := res.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.clock.Now()
	}

	var blobURI string
	if fetchErr == nil && !res.FromCache && res.Data != "" {
		name := archive.ObjectName(s.cfg.Archive.Prefix, sha256.Hex([]byte(res.Data)), fetchedAt)
		blobURI, err = s.archiver.Save(ctx, name, []byte(res.Data))
		if err != nil {
			s.logger.Warn("body archive failed", zap.String("url", url), zap.Error(err))
			blobURI = ""
		}
	}

	rec := audit.Record{
		ID:         id,
		Namespace:  s.cfg.Fetch.Namespace,
		URL:        url,
		Code:       code,
		StatusCode: status,
		Bytes:      int64(len(res.Data)),
		FromCache:  res.FromCache,
		BlobURI:    blobURI,
		FetchedAt:  fetchedAt,
		DurationMS: elapsed.Milliseconds(),
	}
	if err := s.auditor.SaveFetch(ctx, rec); err != nil {
		s.logger.Warn("audit write failed", zap.String("url", url), zap.Error(err))
	}

	event := publisher.Event{
		ID:        id,
		Namespace: rec.Namespace,
		URL:       url,
		Code:      code,
		Bytes:     rec.Bytes,
		FromCache: res.FromCache,
		FetchedAt: fetchedAt,
	}
	if _, err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("url", url), zap.Error(err))
	}
}

// kindStatus maps engine error kinds onto HTTP status codes.
func kindStatus(kind fetch.Kind) int {
	switch kind {
	case fetch.KindInvalidURL, fetch.KindBlockedHost, fetch.KindBlockedIP:
		return http.StatusBadRequest
	case fetch.KindTimeout:
		return http.StatusGatewayTimeout
	case fetch.KindAborted:
		return http.StatusRequestTimeout
	case fetch.KindRateLimited:
		return http.StatusTooManyRequests
	case fetch.KindTooManyRedirects, fetch.KindHTTPStatus, fetch.KindSizeExceeded, fetch.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toErrorBody(err error) *errorBody {
	fe, ok := fetch.AsError(err)
	if !ok {
		return &errorBody{Code: "unknown", Message: err.Error()}
	}
	body := &errorBody{Code: fe.Code(), Message: fe.Error()}
	if fe.RetryAfter > 0 {
		body.RetryAfterSeconds = int(fe.RetryAfter / time.Second)
	}
	return body
}

func writeFetchError(w http.ResponseWriter, err error) {
	fe, ok := fetch.AsError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "unknown", err.Error(), 0)
		return
	}
	body := toErrorBody(fe)
	writeJSON(w, kindStatus(fe.Kind), map[string]*errorBody{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string, retryAfter int) {
	writeJSON(w, status, map[string]*errorBody{"error": {
		Code:              code,
		Message:           msg,
		RetryAfterSeconds: retryAfter,
	}})
}
