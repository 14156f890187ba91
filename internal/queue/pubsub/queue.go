// Package pubsub adapts Google Cloud Pub/Sub to the scan work queue
// interfaces. The topic carries encoded item messages; the subscription is
// consumed by the worker pool.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/zap"

	"github.com/isotools/drawscan/internal/scan"
)

// Queue implements scan.QueuePublisher and scan.QueueConsumer on top of a
// single Pub/Sub client.
type Queue struct {
	client       *pubsub.Client
	topicName    string
	subscription string
	logger       *zap.Logger
}

func fullTopicName(projectID, topicID string) string {
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
}

func fullSubscriptionName(projectID, subID string) string {
	return fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
}

// New creates a Pub/Sub client and verifies the configured topic exists and
// is active. It authenticates using Application Default Credentials.
func New(ctx context.Context, projectID, topicID, subscriptionID string, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	request := &pubsubpb.GetTopicRequest{
		Topic: fullTopicName(projectID, topicID),
	}
	topic, err := client.TopicAdminClient.GetTopic(ctx, request)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic retrieval failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get pubsub topic %q: %w", topicID, err)
	}
	if topic.State != pubsubpb.Topic_ACTIVE {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic state check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q is not active in project %q", topicID, projectID)
	}

	return &Queue{
		client:       client,
		topicName:    topic.Name,
		subscription: fullSubscriptionName(projectID, subscriptionID),
		logger:       logger,
	}, nil
}

// Publish sends every item in the batch and waits for server acknowledgment
// of each. The batch fails as a unit: the first unacknowledged message aborts
// the wait and the caller treats the whole batch as lost.
func (q *Queue) Publish(ctx context.Context, batch []scan.WorkItem) error {
	publisher := q.client.Publisher(q.topicName)

	results := make([]*pubsub.PublishResult, 0, len(batch))
	for _, item := range batch {
		data, err := scan.EncodeItemMessage(item)
		if err != nil {
			return err
		}
		results = append(results, publisher.Publish(ctx, &pubsub.Message{Data: data}))
	}

	for i, result := range results {
		if _, err := result.Get(ctx); err != nil {
			return fmt.Errorf("publish item %q: %w", batch[i].ItemID, err)
		}
	}
	return nil
}

// Receive pulls messages from the subscription and routes them to handle. A
// nil handler return acks the message; an error nacks it for redelivery.
// Receive blocks until the context is canceled.
func (q *Queue) Receive(ctx context.Context, handle func(ctx context.Context, data []byte) error) error {
	subscriber := q.client.Subscriber(q.subscription)
	err := subscriber.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if err := handle(ctx, m.Data); err != nil {
			q.logger.Debug("nacking message for redelivery", zap.Error(err))
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// Close closes the underlying client connection.
func (q *Queue) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
