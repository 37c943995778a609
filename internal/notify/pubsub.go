package notify

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes to Google Cloud Pub/Sub. PUBSUB_EMULATOR_HOST is
// honoured by the client library for local development.
type PubSubPublisher struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubPublisher connects to projectID.
func NewPubSubPublisher(ctx context.Context, projectID string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubPublisher{client: client, topics: make(map[string]*pubsub.Topic)}, nil
}

func (p *PubSubPublisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Publish sends the payload to topic and waits for the server to accept it.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	result := p.topic(topic).Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"type": "account_notice"},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to topic %s: %w", topic, err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = nil
	p.mu.Unlock()
	return p.client.Close()
}
