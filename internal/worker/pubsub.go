package worker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// FeedbackConsumer applies feedback submissions received over Pub/Sub.
type FeedbackConsumer struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	processor        *Processor
	logger           zerolog.Logger
}

// NewFeedbackConsumer creates a consumer for cfg.Subscription.
func NewFeedbackConsumer(ctx context.Context, cfg ConsumerConfig, processor *Processor, logger zerolog.Logger) (*FeedbackConsumer, error) {
	cfg = cfg.withDefaults()
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub project id is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.Subscription)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	subscriber.ReceiveSettings.MaxExtension = cfg.MaxExtension

	return &FeedbackConsumer{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.Subscription,
		processor:        processor,
		logger:           logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (c *FeedbackConsumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("subscription", c.subscriptionName).
		Msg("starting feedback consumer")

	return c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		c.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (c *FeedbackConsumer) Close() error {
	return c.client.Close()
}

func (c *FeedbackConsumer) handleMessage(ctx context.Context, msg *pubsub.Message) {
	start := time.Now()

	outcome := c.processor.Process(ctx, msg.Data)

	event := c.logger.Debug()
	if outcome == OutcomeRetry {
		event = c.logger.Warn()
	}
	event.
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Str("outcome", outcome.String()).
		Dur("duration", time.Since(start)).
		Msg("feedback message handled")

	if outcome.Ack() {
		msg.Ack()
		return
	}
	msg.Nack()
}
