// Package publisher emits domain events to Kafka. Publishing is best effort:
// request handling never fails because the event stream is down.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	db "ragchat/internal/database/kafka"
	"ragchat/pkg/logger"
)

// Event types written to the event topic.
const (
	EventDocumentIndexed = "document.indexed"
	EventTurnRecorded    = "turn.recorded"
	EventSessionDeleted  = "session.deleted"
)

// Event is the envelope for every published message.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ChatID     string    `json:"chat_id,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	Count      int       `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher writes events to the configured topic.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// KafkaPublisher is the Kafka-backed Publisher.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewKafkaPublisher creates a Publisher on the client's event topic.
func NewKafkaPublisher(client *db.Client, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: client.Writer, log: log}
}

// Publish serializes the event and writes it, logging failures instead of
// returning them.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Warn("failed to encode event")
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: data,
	})
	if err != nil {
		p.log.WithError(err).WithField("event_type", event.Type).Warn("failed to publish event")
	}
}

// NopPublisher discards events. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NopPublisher{}
)
