package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/handling-fee/internal/services"
)

func TestPubSubSettingsPublisherPublishesEvent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "handling-fee-settings")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	defer topic.Stop()

	publisher, err := NewPubSubSettingsPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubSettingsPublisher: %v", err)
	}

	occurred := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	event := services.HandlingFeeSettingsEvent{
		ID:         "evt_1",
		Type:       services.SettingsUpdatedEventType,
		Amount:     750,
		Previous:   500,
		Currency:   "AUD",
		ActorID:    "admin",
		OccurredAt: occurred,
	}
	if err := publisher.PublishSettingsUpdated(ctx, event); err != nil {
		t.Fatalf("PublishSettingsUpdated: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload settingsUpdatedMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Amount != 750 || payload.Previous != 500 || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if messages[0].Attributes["eventType"] != services.SettingsUpdatedEventType {
		t.Fatalf("expected event type attribute, got %v", messages[0].Attributes)
	}
	if _, ok := messages[0].Attributes["actorId"]; ok {
		t.Fatalf("actor id should stay out of attributes")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, *pubsub.Message) (string, error) {
	return "", errors.New("topic deleted")
}

func TestPubSubSettingsPublisherWrapsPublishError(t *testing.T) {
	publisher := newPublisher(failingPublisher{})
	err := publisher.PublishSettingsUpdated(context.Background(), services.HandlingFeeSettingsEvent{ID: "evt_1"})
	if err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestNewPubSubSettingsPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubSettingsPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
