package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/canteenhq/canteen-payments/internal/service"
)

// KafkaPublisher pushes terminal payment outcomes onto the platform
// event bus. Messages are keyed by order id so every event for an order
// lands on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) PublishOutcome(ctx context.Context, event service.OutcomeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outcome event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write outcome event: %w", err)
	}
	p.logger.Debug("payment outcome published",
		"order_id", event.OrderID,
		"paid", event.Paid,
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
