package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"tally/internal/metrics"
	"tally/internal/model"
	"tally/internal/service"
)

const (
	projectionAttempts = 5
	projectionBackoff  = 200 * time.Millisecond
)

// KafkaProjectionWorker consumes ledger events from Kafka. A failed projection is retried in
// place before the partition moves on; an event that still fails is skipped and its offset
// committed. The cache is read-through, so a skipped event only costs a later cache miss.
type KafkaProjectionWorker struct {
	svc    service.LedgerService
	reader *kafka.Reader
	logger *zap.Logger
}

func NewKafkaProjectionWorker(svc service.LedgerService, brokers []string, groupID, topic string, logger *zap.Logger) *KafkaProjectionWorker {
	logger = logger.With(zap.String("component", "kafka-projection"))
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:          brokers,
		GroupID:          groupID,
		Topic:            topic,
		MinBytes:         1,
		MaxBytes:         10e6,
		ReadBatchTimeout: time.Second,
		CommitInterval:   time.Second,
		MaxAttempts:      3,
		Logger:           kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:      kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
	})
	return &KafkaProjectionWorker{svc: svc, reader: reader, logger: logger}
}

func (w *KafkaProjectionWorker) Start(ctx context.Context) error {
	w.logger.Info("projection worker is running", zap.String("topic", w.reader.Config().Topic))

	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("failed to fetch message from Kafka", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := projectWithRetry(ctx, w.svc, msg.Value, projectionAttempts, projectionBackoff); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.ProjectionErrors.WithLabelValues("kafka").Inc()
			w.logger.Error("skipping ledger event after failed projection",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			w.logger.Error("failed to commit Kafka offset", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// projectWithRetry applies one event, retrying with a doubling backoff. Events that cannot
// be decoded are not retried.
func projectWithRetry(ctx context.Context, svc service.LedgerService, data []byte, attempts int, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var event *model.TransactionEvent
		event, err = project(ctx, svc, data)
		if err == nil || event == nil || attempt == attempts {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return err
}

func (w *KafkaProjectionWorker) Stop(ctx context.Context) error {
	if err := w.reader.Close(); err != nil {
		return fmt.Errorf("close Kafka reader: %w", err)
	}
	return nil
}
