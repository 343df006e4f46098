package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	w   messageWriter
	now func() time.Time
}

func NewProducer(brokers []string) *Producer {
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{}, // partition by message key
		AllowAutoTopicCreation: true,
	})
}

func newProducer(w messageWriter) *Producer {
	return &Producer{w: w, now: time.Now}
}

func (p *Producer) Close() error { return p.w.Close() }

// Envelope is the event schema published on every topic.
type Envelope struct {
	EventType    string          `json:"eventType"`
	EventVersion string          `json:"eventVersion"`
	OccurredAt   time.Time       `json:"occurredAt"`
	AggregateID  string          `json:"aggregateId"`
	Data         json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.EventType)
	}
	return json.Unmarshal(e.Data, v)
}

// Publish writes a single message. key is the partition key, so events
// sharing a key stay ordered.
func (p *Producer) Publish(ctx context.Context, topic, key, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", eventType, err)
	}
	val, err := json.Marshal(Envelope{
		EventType:    eventType,
		EventVersion: "1",
		OccurredAt:   p.now().UTC(),
		AggregateID:  key,
		Data:         raw,
	})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", eventType, err)
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: val}); err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, topic, err)
	}
	return nil
}

// Handler processes one decoded envelope.
type Handler func(ctx context.Context, evt Envelope) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a consumer group and hands each envelope to a Handler.
type Consumer struct {
	r       messageReader
	onError func(msg kafka.Message, err error)
}

func NewConsumer(brokers []string, groupID string, topics ...string) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1e3,
		MaxBytes:    10e6,
	}))
}

func newConsumer(r messageReader) *Consumer {
	return &Consumer{r: r, onError: func(kafka.Message, error) {}}
}

// OnError registers a callback for messages that fail to decode or handle.
// Such messages are committed and skipped.
func (c *Consumer) OnError(fn func(msg kafka.Message, err error)) {
	c.onError = fn
}

func (c *Consumer) Close() error { return c.r.Close() }

// Run blocks until ctx is cancelled or the reader fails.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var evt Envelope
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			c.onError(msg, fmt.Errorf("decode envelope: %w", err))
		} else if err := handle(ctx, evt); err != nil {
			c.onError(msg, err)
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit message: %w", err)
		}
	}
}
