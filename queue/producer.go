package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON records on one topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer returns a Producer for topic.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish encodes v and writes it under key.
func (p *Producer) Publish(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("queue: encoding payload: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: raw,
	})
	if err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	return nil
}

// Close flushes and shuts the writer down.
func (p *Producer) Close() error { return p.writer.Close() }
