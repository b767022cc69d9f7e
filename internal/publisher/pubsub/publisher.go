// Package pubsub implements a Google Cloud Pub/Sub publisher for
// fetch-completed events.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"

	"github.com/fetchguard/fetchguard/internal/publisher"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	client *gpubsub.Client
	topic  *gpubsub.Topic
}

// New creates a Publisher for the named topic on the given client.
func New(client *gpubsub.Client, topicName string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicName == "" {
		return nil, fmt.Errorf("topic name is required")
	}
	return &Publisher{
		client: client,
		topic:  client.Topic(topicName),
	}, nil
}

// Publish marshals the event to JSON and publishes it, blocking until
// the broker acknowledges.
func (p *Publisher) Publish(ctx context.Context, event publisher.Event) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	msg := &gpubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"namespace": event.Namespace,
			"code":      event.Code,
		},
	}
	result := p.topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
