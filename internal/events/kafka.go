package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// KafkaPublisher fans events out to Kafka for out-of-band consumers
// (notification service, analytics pipeline).
type KafkaPublisher struct {
	publisher message.Publisher
}

var _ EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, logger *slog.Logger) (*KafkaPublisher, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &KafkaPublisher{publisher: publisher}, nil
}

func (p *KafkaPublisher) Publish(_ context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.publisher.Publish(string(event.Type), message.NewMessage(event.ID, data))
}

func (p *KafkaPublisher) Close() error {
	return p.publisher.Close()
}
