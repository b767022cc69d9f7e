// Package archive stores raw fetched bodies as blobs for later replay
// or inspection.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider writes a body blob and returns its location URI.
type Provider interface {
	Save(ctx context.Context, objectName string, data []byte) (string, error)
	Close() error
}

// NoOp discards every blob. It is the default provider.
type NoOp struct{}

// Save implements Provider.
func (NoOp) Save(_ context.Context, objectName string, _ []byte) (string, error) {
	return "noop://" + objectName, nil
}

// Close implements Provider.
func (NoOp) Close() error { return nil }

// ObjectName builds the blob path prefix/YYYY/MM/DD/hash.txt, keeping
// buckets listable by day.
func ObjectName(prefix, hash string, fetchedAt time.Time) string {
	prefix = strings.Trim(prefix, "/")
	date := fetchedAt.UTC().Format("2006/01/02")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.txt", date, hash)
	}
	return fmt.Sprintf("%s/%s/%s.txt", prefix, date, hash)
}
