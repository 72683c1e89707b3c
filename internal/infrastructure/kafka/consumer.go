package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"livechat-console/internal/logger"
)

// FrameHandler receives raw channel frames. The admin console implements it.
type FrameHandler interface {
	HandleFrame(data []byte)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer feeds frames published on the bus into the console, using
// the same decoding path as the live channel.
type KafkaConsumer struct {
	reader  messageReader
	handler FrameHandler
	log     *logrus.Entry
	wg      sync.WaitGroup
}

func NewKafkaConsumer(brokers []string, groupID, topic string, handler FrameHandler) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,                      // Read immediately, don't wait for batches
		MaxBytes:       10e6,                   // 10MB max
		CommitInterval: 100 * time.Millisecond, // Commit every 100ms instead of 1s
		StartOffset:    kafka.LastOffset,
		MaxWait:        100 * time.Millisecond, // Max wait 100ms for new data
	})
	return newConsumer(reader, topic, handler)
}

func newConsumer(r messageReader, topic string, handler FrameHandler) *KafkaConsumer {
	return &KafkaConsumer{
		reader:  r,
		handler: handler,
		log:     logger.Get("kafka").WithField("topic", topic),
	}
}

// Start reads until ctx is cancelled.
func (k *KafkaConsumer) Start(ctx context.Context) {
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				k.log.Errorf("Recovered from panic in Kafka consumer: %v", r)
			}
		}()

		for {
			m, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					k.log.Info("Kafka consumer stopping")
					return
				}
				if errors.Is(err, kafka.RebalanceInProgress) || errors.Is(err, kafka.LeaderNotAvailable) {
					k.log.WithError(err).Warn("Kafka group is rebalancing, continuing")
					continue
				}
				if errors.Is(err, io.EOF) {
					k.log.Info("Kafka reader closed")
					return
				}
				k.log.WithError(err).Error("Error reading Kafka message")
				continue
			}
			k.handleMessage(m.Value)
		}
	}()
}

func (k *KafkaConsumer) handleMessage(value []byte) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Errorf("Recovered from panic while handling frame: %v", r)
		}
	}()

	if !json.Valid(value) {
		k.log.WithField("raw", string(value)).Warn("Dropping malformed frame from bus")
		return
	}
	if k.handler != nil {
		k.handler.HandleFrame(value)
	}
}

// Close stops the reader and waits for the read loop to exit.
func (k *KafkaConsumer) Close() error {
	err := k.reader.Close()
	k.wg.Wait()
	return err
}
