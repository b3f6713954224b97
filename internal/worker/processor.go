package worker

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"tally/internal/metrics"
	"tally/internal/model"
	"tally/internal/repository"
	"tally/internal/service"
)

const projectionGroup = "projection_group"

// project decodes one ledger event and applies it to the read side.
func project(ctx context.Context, svc service.LedgerService, data []byte) (*model.TransactionEvent, error) {
	event, err := repository.DecodeTransactionEvent(data)
	if err != nil {
		return nil, err
	}
	if err := svc.ProjectTransaction(ctx, *event); err != nil {
		return event, fmt.Errorf("project transaction %s: %w", event.Transaction.TransactionID, err)
	}
	return event, nil
}

// ProjectionWorker listens on the ledger event subject and keeps the transaction cache warm.
type ProjectionWorker struct {
	svc      service.LedgerService
	natsConn *nats.Conn
	logger   *zap.Logger
}

func NewProjectionWorker(svc service.LedgerService, nc *nats.Conn, logger *zap.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		svc:      svc,
		natsConn: nc,
		logger:   logger.With(zap.String("component", "nats-projection")),
	}
}

// Run subscribes to the ledger event subject and blocks until ctx is cancelled.
func (w *ProjectionWorker) Run(ctx context.Context) error {
	// Each event goes to only one worker of the queue group.
	sub, err := w.natsConn.QueueSubscribe(model.TopicTransactionRecorded, projectionGroup, func(m *nats.Msg) {
		event, err := project(ctx, w.svc, m.Data)
		if err != nil {
			metrics.ProjectionErrors.WithLabelValues("nats").Inc()
			w.logger.Error("failed to project ledger event", zap.Error(err))
			return
		}
		w.logger.Debug("ledger event projected",
			zap.String("transaction_id", event.Transaction.TransactionID),
			zap.String("account_number", event.Transaction.AccountNumber),
		)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	w.logger.Info("projection worker is running")

	<-ctx.Done()

	w.logger.Info("projection worker received shutdown signal, draining subscription")
	return sub.Drain()
}

// Start implements the infrastructure.Server interface.
func (w *ProjectionWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *ProjectionWorker) Stop(ctx context.Context) error {
	return nil
}
