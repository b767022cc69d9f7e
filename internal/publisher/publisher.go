// Package publisher emits fetch-completed events to a pluggable
// message bus.
package publisher

import (
	"context"
	"time"
)

// Event describes one completed fetch for downstream consumers.
type Event struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	URL       string    `json:"url"`
	Code      string    `json:"code"`
	Bytes     int64     `json:"bytes"`
	FromCache bool      `json:"from_cache"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Publisher delivers events. Publish returns the broker message ID.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
	Close() error
}

// NoOp drops every event. It is the default publisher.
type NoOp struct{}

// Publish implements Publisher.
func (NoOp) Publish(_ context.Context, event Event) (string, error) {
	return event.ID, nil
}

// Close implements Publisher.
func (NoOp) Close() error { return nil }
