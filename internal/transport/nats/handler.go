package nats

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"tally/internal/model"
	"tally/internal/service"
)

const (
	SubjectUse    = "commands.use"
	SubjectCancel = "commands.cancel"

	queueGroup = "ledger_group"
)

// Reply is the body sent back to a command's reply subject.
type Reply struct {
	Success     bool                     `json:"success"`
	Transaction *model.TransactionResult `json:"transaction,omitempty"`
	Error       *model.Error             `json:"error,omitempty"`
}

// Handler subscribes to NATS command subjects and delegates to the ledger service.
// Commands sent with a reply subject get a Reply; fire-and-forget commands are only logged.
type Handler struct {
	svc    service.LedgerService
	nc     *nats.Conn
	subs   []*nats.Subscription
	logger *zap.Logger
}

func NewHandler(svc service.LedgerService, nc *nats.Conn, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, nc: nc, logger: logger.With(zap.String("component", "nats-commands"))}
}

// Start subscribes to command subjects and blocks until ctx is cancelled (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	for _, subject := range []string{SubjectUse, SubjectCancel} {
		sub, err := h.nc.QueueSubscribe(subject, queueGroup, func(m *nats.Msg) {
			reply := h.handle(ctx, m.Subject, m.Data)
			if m.Reply == "" {
				return
			}
			data, err := json.Marshal(reply)
			if err != nil {
				h.logger.Error("failed to encode reply", zap.String("subject", m.Subject), zap.Error(err))
				return
			}
			if err := m.Respond(data); err != nil {
				h.logger.Error("failed to send reply", zap.String("subject", m.Subject), zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
		h.subs = append(h.subs, sub)
	}

	h.logger.Info("NATS command handler is running")

	// Block until context is cancelled.
	<-ctx.Done()
	h.logger.Info("NATS command handler shutting down, draining subscriptions")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

func (h *Handler) handle(ctx context.Context, subject string, data []byte) Reply {
	var (
		res *model.TransactionResult
		err error
	)
	switch subject {
	case SubjectUse:
		var req model.UseBalanceRequest
		if err = json.Unmarshal(data, &req); err == nil {
			res, err = h.svc.UseBalance(ctx, req)
		} else {
			err = model.ErrInvalidRequest
		}
	case SubjectCancel:
		var req model.CancelBalanceRequest
		if err = json.Unmarshal(data, &req); err == nil {
			res, err = h.svc.CancelBalance(ctx, req)
		} else {
			err = model.ErrInvalidRequest
		}
	default:
		err = model.ErrInvalidRequest
	}

	if err != nil {
		e := model.AsError(err)
		h.logger.Warn("command failed", zap.String("subject", subject), zap.String("code", string(e.Code)), zap.Error(err))
		return Reply{Error: e}
	}
	return Reply{Success: true, Transaction: res}
}
