// Package jobs publishes fulfillment lifecycle events for downstream workers.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/brc-ops/backoffice/internal/services"
)

// EventSchemaVersion is sent as the schemaVersion attribute of every message.
const EventSchemaVersion = "1"

// FulfillmentEventTopic publishes FulfillmentEvent messages as JSON.
type FulfillmentEventTopic struct {
	topic   *pubsub.Topic
	ordered bool
}

var _ services.FulfillmentEventPublisher = (*FulfillmentEventTopic)(nil)

// TopicOption customises a FulfillmentEventTopic.
type TopicOption func(*FulfillmentEventTopic)

// WithOrderedDelivery keys messages by order id so subscribers with ordering enabled
// see one order's events in publish order.
func WithOrderedDelivery() TopicOption {
	return func(t *FulfillmentEventTopic) { t.ordered = true }
}

// NewFulfillmentEventTopic wraps topic.
func NewFulfillmentEventTopic(topic *pubsub.Topic, opts ...TopicOption) (*FulfillmentEventTopic, error) {
	if topic == nil {
		return nil, errors.New("fulfillment events: topic is required")
	}
	t := &FulfillmentEventTopic{topic: topic}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.ordered {
		topic.EnableMessageOrdering = true
	}
	return t, nil
}

// PublishFulfillmentEvent blocks until Pub/Sub acknowledges the message and returns its id.
func (t *FulfillmentEventTopic) PublishFulfillmentEvent(ctx context.Context, event services.FulfillmentEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode fulfillment event: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: eventAttributes(event)}
	if t.ordered {
		msg.OrderingKey = strings.TrimSpace(event.OrderID)
	}

	id, err := t.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			// A failed ordered publish pauses its key until resumed.
			t.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("publish fulfillment event %s: %w", event.RequestID, err)
	}
	return id, nil
}

func eventAttributes(event services.FulfillmentEvent) map[string]string {
	attrs := map[string]string{"schemaVersion": EventSchemaVersion}
	for key, value := range map[string]string{
		"eventType":       event.Type,
		"requestId":       event.RequestID,
		"orderId":         event.OrderID,
		"externalOrderId": event.ExternalOrderID,
	} {
		if value = strings.TrimSpace(value); value != "" {
			attrs[key] = value
		}
	}
	if !event.OccurredAt.IsZero() {
		attrs["occurredAt"] = event.OccurredAt.UTC().Format(time.RFC3339)
	}
	return attrs
}
