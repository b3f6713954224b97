package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"tally/internal/repository"
)

const headerEventType = "event-type"

// Bus publishes ledger events to a single Kafka topic. Messages are keyed by account number
// so events of one account keep their order within a partition.
type Bus struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewBus(brokers []string, topic string, logger *zap.Logger) *Bus {
	logger = logger.With(zap.String("component", "kafka-bus"))

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		Async:        true,
		Logger:       kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
	}
	writer.Completion = func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, msg := range messages {
			logger.Error("failed to write ledger event to Kafka", zap.String("key", string(msg.Key)), zap.Error(err))
		}
	}

	return &Bus{writer: writer, logger: logger}
}

// Publish hands the event to the async writer; delivery failures surface in the completion log.
func (b *Bus) Publish(topic string, data []byte) error {
	msg, err := newMessage(topic, data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.writer.WriteTimeout)
	defer cancel()

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to produce ledger event to Kafka: %w", err)
	}
	return nil
}

func newMessage(topic string, data []byte) (kafka.Message, error) {
	event, err := repository.DecodeTransactionEvent(data)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(event.Transaction.AccountNumber),
		Value:   data,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(topic)}},
	}, nil
}

func (b *Bus) Close() error {
	if err := b.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	b.logger.Info("Kafka writer closed")
	return nil
}
