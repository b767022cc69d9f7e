// Package audit defines the fetch audit log: one record per completed
// fetch, successful or not, written to a pluggable backend.
package audit

import (
	"context"
	"time"
)

// Record captures the outcome of a single fetch for the audit trail.
type Record struct {
	ID         string
	Namespace  string
	URL        string
	Code       string // stable outcome code, "ok" on success
	StatusCode int
	Bytes      int64
	FromCache  bool
	BlobURI    string // where the raw body was archived, empty if not
	FetchedAt  time.Time
	DurationMS int64
}

// Provider persists audit records.
type Provider interface {
	SaveFetch(ctx context.Context, rec Record) error
	Close()
}

// NoOp discards every record. It is the default provider.
type NoOp struct{}

// SaveFetch implements Provider.
func (NoOp) SaveFetch(context.Context, Record) error { return nil }

// Close implements Provider.
func (NoOp) Close() {}
