package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus is the in-process pub/sub used for the live profile
// subscription: a publish on one side is observed by every standing
// subscriber without a reload. Backed by watermill's gochannel.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger

	// forward mirrors every published event to an external publisher
	// (Kafka in production), when one is configured.
	forward EventPublisher
}

var _ EventPublisher = (*Bus)(nil)
var _ EventSubscriber = (*Bus)(nil)

func NewBus(logger *slog.Logger, forward EventPublisher) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NewSlogLogger(logger),
		),
		logger:  logger,
		forward: forward,
	}
}

func (b *Bus) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, data)
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(string(event.Type), msg); err != nil {
		return err
	}

	if b.forward != nil {
		if err := b.forward.Publish(ctx, event); err != nil {
			// External fan-out is best effort; local subscribers have
			// already observed the event.
			b.logger.Error("failed to forward event",
				"event_type", event.Type,
				"event_id", event.ID,
				"error", err)
		}
	}

	return nil
}

// Subscribe returns a channel delivering events of the given type. The
// channel closes when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, eventType EventType) (<-chan *Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, string(eventType))
	if err != nil {
		return nil, err
	}

	out := make(chan *Event, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.logger.Error("failed to decode event",
					"message_id", msg.UUID,
					"error", err)
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (b *Bus) Close() error {
	if b.forward != nil {
		_ = b.forward.Close()
	}
	return b.pubsub.Close()
}
