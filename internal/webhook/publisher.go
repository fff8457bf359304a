// Package webhook publishes normalized provider events to Kafka for the
// ingestion worker.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"example.com/commitcollect/internal/domain"
)

// Writer is the minimal kafka.Writer surface used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher serializes provider events onto the webhook topic. Messages are
// keyed by athlete so one athlete's events stay ordered within a partition.
type Publisher struct {
	writer Writer
}

// NewPublisher builds a publisher over an existing writer.
func NewPublisher(writer Writer) *Publisher {
	return &Publisher{writer: writer}
}

// NewKafkaWriter constructs the production writer for the webhook topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
}

// Publish writes one normalized event.
func (p *Publisher) Publish(ctx context.Context, event domain.ProviderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal provider event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OwnerID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.ObjectType + "." + event.AspectType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish provider event: %w", err)
	}
	return nil
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
