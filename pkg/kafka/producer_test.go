package kafka

import (
	"context"
	"encoding/json"
	"testing"

	skafka "github.com/segmentio/kafka-go"
)

// fakeWriter is a test writer that records messages written.
type fakeWriter struct {
	msgs []skafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...skafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublish(t *testing.T) {
	fw := &fakeWriter{}
	p := NewProducerWithWriter(fw)
	err := p.Publish(context.Background(), "order-1", map[string]string{"event": "order-created"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fw.msgs))
	}
	if string(fw.msgs[0].Key) != "order-1" {
		t.Errorf("expected key order-1, got %s", fw.msgs[0].Key)
	}
	var body map[string]string
	if err := json.Unmarshal(fw.msgs[0].Value, &body); err != nil {
		t.Fatalf("value is not json: %v", err)
	}
	if body["event"] != "order-created" {
		t.Errorf("unexpected payload: %v", body)
	}
}

func TestPublish_UnencodableValue(t *testing.T) {
	fw := &fakeWriter{}
	p := NewProducerWithWriter(fw)

	if err := p.Publish(context.Background(), "order-1", make(chan int)); err == nil {
		t.Fatal("expected an encoding error")
	}
	if len(fw.msgs) != 0 {
		t.Errorf("nothing should reach the writer, got %d messages", len(fw.msgs))
	}
}
