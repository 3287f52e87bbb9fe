package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	skafka "github.com/segmentio/kafka-go"
)

// Writer is the slice of segmentio's kafka.Writer the producer needs,
// injectable so tests capture messages instead of dialing a broker.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publisher is what the domain services see: one JSON event, keyed.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// Producer publishes billing events to a single topic. Events are keyed by
// order id and hashed to a partition, so consumers see every event for one
// order in the sequence it was emitted.
type Producer struct {
	writer Writer
}

func NewProducer(broker, topic string) *Producer {
	return &Producer{writer: &skafka.Writer{
		Addr:         skafka.TCP(broker),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
	}}
}

// NewProducerWithWriter injects a custom writer, used by tests.
func NewProducerWithWriter(w Writer) *Producer {
	return &Producer{writer: w}
}

func (p *Producer) Publish(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode event for key %s: %w", key, err)
	}
	if err := p.writer.WriteMessages(ctx, skafka.Message{Key: []byte(key), Value: payload}); err != nil {
		return fmt.Errorf("failed to publish event for key %s: %w", key, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
