package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// reminderMessage is the payload published for a downstream delivery worker.
type reminderMessage struct {
	Event     string    `json:"event"` // "reminder_due"
	Version   int       `json:"version"`
	Recipient int64     `json:"recipient"`
	Text      string    `json:"text"`
	TS        time.Time `json:"ts"`
}

// KafkaGateway publishes reminders to a topic instead of delivering them
// directly; an external consumer owns the last-mile send. Messages are
// keyed by recipient so one participant's reminders stay ordered.
type KafkaGateway struct {
	writer *kafka.Writer
}

// NewKafkaGateway constructs a KafkaGateway publishing to topic on broker.
func NewKafkaGateway(broker, topic string) *KafkaGateway {
	return &KafkaGateway{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 20 * time.Millisecond,
			Compression:  kafka.Snappy,
		},
	}
}

// Send publishes one reminder message.
func (g *KafkaGateway) Send(ctx context.Context, recipient int64, text string) error {
	payload, err := json.Marshal(reminderMessage{
		Event:     "reminder_due",
		Version:   1,
		Recipient: recipient,
		Text:      text,
		TS:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", recipient)),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("ReminderDue")},
			{Key: "version", Value: []byte("1")},
		},
	}
	if err := g.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish reminder: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (g *KafkaGateway) Close() error {
	return g.writer.Close()
}
