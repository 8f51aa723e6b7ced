package notification

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/suteetoe/coopregistry/pkg/config"
)

const EventApplicationStatusChanged = "application.status_changed"

// StatusEvent is published whenever an applicant is told about a decision.
type StatusEvent struct {
	EventType         string    `json:"event_type"`
	ApplicationNumber string    `json:"application_number"`
	Status            string    `json:"status"`
	ApplicantID       string    `json:"applicant_id"`
	CooperativeName   string    `json:"cooperative_name"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// Publisher writes keyed messages to the status topic.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns nil when no brokers are configured.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
