// Package events ships status-change events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements ports.EventPublisher. Events are keyed by device
// so every update for one device lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	source string
	now    func() time.Time
}

var _ ports.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic, source string) *KafkaPublisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}, source)
}

func newPublisher(w messageWriter, source string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, source: source, now: time.Now}
}

func (k *KafkaPublisher) Publish(ctx context.Context, events []ports.StatusEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := k.now()
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.DeviceID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.DeviceID),
			Value: value,
			Time:  now,
			Headers: []kafka.Header{
				{Key: "source", Value: []byte(k.source)},
				{Key: "store-version", Value: []byte(fmt.Sprint(ev.Version))},
			},
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events: %w", len(msgs), err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
