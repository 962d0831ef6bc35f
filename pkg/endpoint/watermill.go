package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/integra/pkg/faults"
)

const (
	IntegrationIDMetadataKey = "integration_id"
	EndpointIDMetadataKey    = "endpoint_id"
)

// Publisher is an outbound endpoint publishing the message as JSON to a topic. The reply is
// the message itself.
type Publisher struct {
	EndpointID string
	Topic      string
	Publisher  message.Publisher
}

func (p *Publisher) Call(_ context.Context, integrationID string, msg any) (any, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	m := message.NewMessage("msg-"+watermill.NewULID(), payload)
	m.Metadata.Set(IntegrationIDMetadataKey, integrationID)
	m.Metadata.Set(EndpointIDMetadataKey, p.EndpointID)

	if err := p.Publisher.Publish(p.Topic, m); err != nil {
		return nil, faults.Retryable(fmt.Errorf("failed to publish to %s: %w", p.Topic, err))
	}

	return msg, nil
}

// Subscriber is an inbound endpoint feeding JSON messages of a topic to the bound integration.
// Messages are acked unless delivery fails with a retryable error.
type Subscriber struct {
	Topic      string
	Subscriber message.Subscriber
	Logger     *slog.Logger
}

func (s *Subscriber) Listen(ctx context.Context, integrationID string, deliver Deliver) (func() error, error) {
	// the subscription outlives the bind call
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	messages, err := s.Subscriber.Subscribe(ctx, s.Topic)
	if err != nil {
		cancel()

		return nil, err
	}

	logger := s.logger().With("topic", s.Topic, "integration_id", integrationID)

	go func() {
		for msg := range messages {
			var payload any

			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				logger.WarnContext(ctx, "Dropping undecodable message", "message_id", msg.UUID, "error", err)
				msg.Ack()

				continue
			}

			err := deliver(msg.Context(), payload)
			if err != nil && faults.IsRetryable(err) {
				logger.WarnContext(ctx, "Delivery failed, message will be redelivered", "message_id", msg.UUID, "error", err)
				msg.Nack()

				continue
			}

			if err != nil {
				logger.InfoContext(ctx, "Message not processed", "message_id", msg.UUID, "error", err)
			}

			msg.Ack()
		}
	}()

	return func() error {
		cancel()

		return nil
	}, nil
}

func (s *Subscriber) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}

	return slog.Default()
}
