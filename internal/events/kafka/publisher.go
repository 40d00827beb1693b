package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/virtualbank/backend/internal/events"
)

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Publish writes event as JSON to topic.
func (p *Publisher) Publish(ctx context.Context, topic string, event any) error {
	msg, err := newMessage(topic, event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// newMessage encodes event. Events carrying a uid are keyed by it so one
// account's events stay ordered within a partition.
func newMessage(topic string, event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event for %s: %w", topic, err)
	}

	msg := kafka.Message{
		Topic: topic,
		Value: data,
	}
	switch e := event.(type) {
	case events.TransactionRecorded:
		msg.Key = []byte(e.UID)
	case *events.TransactionRecorded:
		msg.Key = []byte(e.UID)
	}
	return msg, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ events.Publisher = (*Publisher)(nil)
