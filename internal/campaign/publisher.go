package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jperram92/dograh/pkg/logger"
	"go.uber.org/zap"
)

// Event types published to the campaign event topic.
const (
	EventTypeCallCompleted = "campaign.call_completed"
	EventTypeRetryNeeded   = "campaign.call_retry_needed"
)

// CallCompletedEvent is emitted when a campaign call reaches the completed
// status.
type CallCompletedEvent struct {
	CampaignID    string `json:"campaign_id"`
	WorkflowRunID string `json:"workflow_run_id"`
	QueuedRunID   string `json:"queued_run_id,omitempty"`
	CallDuration  int    `json:"call_duration"`
}

// RetryNeededEvent is emitted when a campaign call ends busy or unanswered so
// the campaign layer can requeue it.
type RetryNeededEvent struct {
	WorkflowRunID string `json:"workflow_run_id"`
	Reason        string `json:"reason"`
	CampaignID    string `json:"campaign_id"`
	QueuedRunID   string `json:"queued_run_id,omitempty"`
}

// EventPublisher fans call lifecycle events out to the campaign subsystem.
type EventPublisher interface {
	PublishCallCompleted(ctx context.Context, ev CallCompletedEvent) error
	PublishRetryNeeded(ctx context.Context, ev RetryNeededEvent) error
}

// PubSubConfig holds the campaign event topic settings.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// PubSubPublisher publishes campaign events to a Google Cloud Pub/Sub topic.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher connects to Pub/Sub and ensures the topic exists.
func NewPubSubPublisher(ctx context.Context, cfg *PubSubConfig) (*PubSubPublisher, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub project ID is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check if topic exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, cfg.TopicName)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create topic %s: %w", cfg.TopicName, err)
		}
		logger.Base().Info("campaign event topic created", zap.String("topic", cfg.TopicName))
	}

	return &PubSubPublisher{client: client, topic: topic}, nil
}

// PublishCallCompleted publishes a call completed event.
func (p *PubSubPublisher) PublishCallCompleted(ctx context.Context, ev CallCompletedEvent) error {
	return p.publish(ctx, EventTypeCallCompleted, ev.CampaignID, ev)
}

// PublishRetryNeeded publishes a retry needed event.
func (p *PubSubPublisher) PublishRetryNeeded(ctx context.Context, ev RetryNeededEvent) error {
	return p.publish(ctx, EventTypeRetryNeeded, ev.CampaignID, ev)
}

func (p *PubSubPublisher) publish(ctx context.Context, eventType, campaignID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type":   eventType,
			"campaign_id":  campaignID,
			"published_at": time.Now().UTC().Format(time.RFC3339),
		},
	})

	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	logger.Base().Info("campaign event published",
		zap.String("event_type", eventType),
		zap.String("campaign_id", campaignID),
		zap.String("message_id", id),
	)
	return nil
}

// Close releases the Pub/Sub client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
