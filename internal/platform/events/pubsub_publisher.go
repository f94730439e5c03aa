package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/handling-fee/internal/services"
)

// Publisher sends messages to a topic and waits for the server ack.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

type topicPublisher struct {
	topic *pubsub.Topic
}

func (p topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return p.topic.Publish(ctx, msg).Get(ctx)
}

// PubSubSettingsPublisher announces handling fee setting changes on a Pub/Sub topic.
type PubSubSettingsPublisher struct {
	publisher Publisher
	marshal   func(any) ([]byte, error)
}

var _ services.SettingsEventPublisher = (*PubSubSettingsPublisher)(nil)

// NewPubSubSettingsPublisher wraps topic.
func NewPubSubSettingsPublisher(topic *pubsub.Topic) (*PubSubSettingsPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub settings publisher: topic is required")
	}
	return newPublisher(topicPublisher{topic: topic}), nil
}

func newPublisher(p Publisher) *PubSubSettingsPublisher {
	return &PubSubSettingsPublisher{publisher: p, marshal: json.Marshal}
}

type settingsUpdatedMessage struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Amount     int64     `json:"amount"`
	Previous   int64     `json:"previous"`
	Currency   string    `json:"currency"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PublishSettingsUpdated publishes event as JSON. Event ID and type are copied into
// attributes so subscribers can filter without decoding.
func (p *PubSubSettingsPublisher) PublishSettingsUpdated(ctx context.Context, event services.HandlingFeeSettingsEvent) error {
	if p == nil || p.publisher == nil {
		return errors.New("pubsub settings publisher: not initialised")
	}

	data, err := p.marshal(settingsUpdatedMessage{
		ID:         event.ID,
		Type:       event.Type,
		Amount:     event.Amount,
		Previous:   event.Previous,
		Currency:   event.Currency,
		ActorID:    event.ActorID,
		OccurredAt: event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal settings event: %w", err)
	}

	attrs := make(map[string]string, 3)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "currency", event.Currency)

	if _, err := p.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}); err != nil {
		return fmt.Errorf("publish settings event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
