// Package memory provides an in-process publisher for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/fetchguard/fetchguard/internal/publisher"
)

// Publisher records published events in memory.
type Publisher struct {
	mu     sync.Mutex
	events []publisher.Event
	closed bool
}

// New creates an empty in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish appends the event and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, event publisher.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", fmt.Errorf("publisher is closed")
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("mem-%d", len(p.events)), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []publisher.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publisher.Event(nil), p.events...)
}

// Close marks the publisher closed; later publishes fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
