package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"livechat-console/internal/domain"
	"livechat-console/internal/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer mirrors console activity onto the events topic.
type KafkaProducer struct {
	writer messageWriter
	topic  string
	log    *logrus.Entry
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
		// Optimize for low latency
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newProducer(writer, topic)
}

func newProducer(w messageWriter, topic string) *KafkaProducer {
	return &KafkaProducer{writer: w, topic: topic, log: logger.Get("kafka").WithField("topic", topic)}
}

// Publish writes one event keyed by session id so a session's events stay
// ordered within a partition.
func (k *KafkaProducer) Publish(ctx context.Context, event domain.ConsoleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode console event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
			{Key: "role", Value: []byte(event.Role)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.log.WithError(err).Error("Failed to send console event")
		return fmt.Errorf("write console event: %w", err)
	}

	k.log.WithField("event", event.Type).Debug("Console event sent")
	return nil
}

func (k *KafkaProducer) Close() error {
	return k.writer.Close()
}
