package service

import (
	"context"
	"strconv"

	"tally/internal/lock"
	"tally/internal/model"
)

// LedgerService defines the business operations for the ledger.
// All transport layers (HTTP, gRPC, NATS) depend on this interface, not on the concrete service.
type LedgerService interface {
	UseBalance(ctx context.Context, req model.UseBalanceRequest) (*model.TransactionResult, error)
	CancelBalance(ctx context.Context, req model.CancelBalanceRequest) (*model.TransactionResult, error)
	QueryTransaction(ctx context.Context, transactionID string) (*model.TransactionResult, error)

	CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.AccountUser, error)
	CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.AccountInfo, error)
	CloseAccount(ctx context.Context, req model.CloseAccountRequest) (*model.AccountInfo, error)
	ListAccounts(ctx context.Context, userID int64) ([]*model.AccountInfo, error)

	ProjectTransaction(ctx context.Context, event model.TransactionEvent) error
}

// Ledger is the LedgerService used by transports. Every mutating call runs inside
// the lock guard keyed by the request, then delegates to the Coordinator.
type Ledger struct {
	coord *Coordinator
	guard *lock.Guard
}

var _ LedgerService = (*Ledger)(nil)

func NewLedger(coord *Coordinator, guard *lock.Guard) *Ledger {
	return &Ledger{coord: coord, guard: guard}
}

func userLockKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// runLocked validates req, then calls op while holding the lock for key.
func runLocked[T any](ctx context.Context, g *lock.Guard, key string, validate func() error, op func(context.Context) (T, error)) (T, error) {
	var res T
	if err := validate(); err != nil {
		return res, err
	}
	err := g.Run(ctx, key, func(ctx context.Context) error {
		var err error
		res, err = op(ctx)
		return err
	})
	return res, err
}

func (l *Ledger) UseBalance(ctx context.Context, req model.UseBalanceRequest) (*model.TransactionResult, error) {
	return runLocked(ctx, l.guard, req.AccountKey(), req.Validate, func(ctx context.Context) (*model.TransactionResult, error) {
		return l.coord.UseBalance(ctx, req)
	})
}

func (l *Ledger) CancelBalance(ctx context.Context, req model.CancelBalanceRequest) (*model.TransactionResult, error) {
	return runLocked(ctx, l.guard, req.AccountKey(), req.Validate, func(ctx context.Context) (*model.TransactionResult, error) {
		return l.coord.CancelBalance(ctx, req)
	})
}

func (l *Ledger) QueryTransaction(ctx context.Context, transactionID string) (*model.TransactionResult, error) {
	return l.coord.QueryTransaction(ctx, transactionID)
}

func (l *Ledger) CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.AccountUser, error) {
	return l.coord.CreateUser(ctx, req)
}

// CreateAccount locks the user rather than an account so the per-user account cap holds.
func (l *Ledger) CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.AccountInfo, error) {
	return runLocked(ctx, l.guard, userLockKey(req.UserID), req.Validate, func(ctx context.Context) (*model.AccountInfo, error) {
		return l.coord.CreateAccount(ctx, req)
	})
}

func (l *Ledger) CloseAccount(ctx context.Context, req model.CloseAccountRequest) (*model.AccountInfo, error) {
	return runLocked(ctx, l.guard, req.AccountKey(), req.Validate, func(ctx context.Context) (*model.AccountInfo, error) {
		return l.coord.CloseAccount(ctx, req)
	})
}

func (l *Ledger) ListAccounts(ctx context.Context, userID int64) ([]*model.AccountInfo, error) {
	return l.coord.ListAccounts(ctx, userID)
}

func (l *Ledger) ProjectTransaction(ctx context.Context, event model.TransactionEvent) error {
	return l.coord.ProjectTransaction(ctx, event)
}
