package kafka

import (
	"context"
	"log"
	"time"

	skafka "github.com/segmentio/kafka-go"
)

// Handler processes one consumed message. Returning an error leaves the
// offset uncommitted so the message is redelivered.
type Handler func(ctx context.Context, key []byte, value []byte) error

// Consumer wraps a kafka reader with a commit-on-success fetch loop.
type Consumer struct {
	reader *skafka.Reader
}

// NewConsumer creates a consumer for the given topic. The groupID splits
// work between running replicas instead of duplicating it.
func NewConsumer(brokers []string, topic string, groupID string) *Consumer {
	return &Consumer{
		reader: skafka.NewReader(skafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
	}
}

// Start blocks fetching messages until ctx is cancelled. A failed handler
// does not commit, so the message will be retried.
func (c *Consumer) Start(ctx context.Context, handler Handler) {
	log.Printf("kafka consumer started. topic: %s, group: %s", c.reader.Config().Topic, c.reader.Config().GroupID)

	for {
		if ctx.Err() != nil {
			return
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("error fetching message: %v", err)
			time.Sleep(time.Second)
			continue
		}

		processCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = handler(processCtx, m.Key, m.Value)
		cancel()

		if err != nil {
			log.Printf("processing failed (offset %d): %v", m.Offset, err)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("commit failed (offset %d): %v", m.Offset, err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
