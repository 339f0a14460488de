package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/telhawk-systems/telhawk-investigate/common/messaging"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// Publisher publishes investigation lifecycle events to NATS subjects.
type Publisher struct {
	client messaging.Publisher
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(client messaging.Publisher) *Publisher {
	return &Publisher{client: client}
}

// PublishCreated publishes an investigation created event.
func (p *Publisher) PublishCreated(ctx context.Context, event *models.InvestigationEvent) error {
	return p.publish(ctx, messaging.SubjectInvestigationCreated, event)
}

// PublishUpdated publishes an investigation updated event.
func (p *Publisher) PublishUpdated(ctx context.Context, event *models.InvestigationEvent) error {
	return p.publish(ctx, messaging.SubjectInvestigationUpdated, event)
}

// PublishAnalyzed publishes an investigation analyzed event.
func (p *Publisher) PublishAnalyzed(ctx context.Context, event *models.InvestigationEvent) error {
	return p.publish(ctx, messaging.SubjectInvestigationAnalyzed, event)
}

// PublishEscalated publishes an investigation escalated event.
func (p *Publisher) PublishEscalated(ctx context.Context, event *models.InvestigationEvent) error {
	return p.publish(ctx, messaging.SubjectInvestigationEscalated, event)
}

// publish marshals data to JSON and publishes to the specified subject.
func (p *Publisher) publish(ctx context.Context, subject string, data interface{}) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.client.Publish(ctx, subject, bytes)
}
