package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/atlasmeta/contentdex/internal/domain/content"
)

// Publisher writes ingestion events to the stream. The envelope id doubles
// as the JetStream message id so republishing the same envelope is
// deduplicated by the server.
type Publisher struct {
	js     jetstream.JetStream
	stream string
}

// NewPublisher creates a publisher for stream (DefaultStream when empty).
func NewPublisher(js jetstream.JetStream, stream string) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{js: js, stream: stream}
}

// PublishContent publishes a content upsert.
func (p *Publisher) PublishContent(ctx context.Context, c *content.Content) (string, error) {
	return p.publish(ctx, ".content", &Envelope{Content: c})
}

// PublishGroup publishes a group projection.
func (p *Publisher) PublishGroup(ctx context.Context, g *content.Group) (string, error) {
	return p.publish(ctx, ".group", &Envelope{Group: g})
}

// PublishEquivalence publishes an equivalence assignment.
func (p *Publisher) PublishEquivalence(ctx context.Context, canonical content.ID, members []content.ID) (string, error) {
	return p.publish(ctx, ".equivalence", &Envelope{
		Equivalence: &EquivalencePayload{Canonical: canonical, Members: members},
	})
}

func (p *Publisher) publish(ctx context.Context, suffix string, env *Envelope) (string, error) {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	subject := p.stream + suffix
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.ID)); err != nil {
		return "", fmt.Errorf("publish %s: %w", subject, err)
	}
	return env.ID, nil
}
