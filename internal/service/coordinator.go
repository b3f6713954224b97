package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tally/internal/balance"
	"tally/internal/ledger"
	"tally/internal/metrics"
	"tally/internal/model"
	"tally/internal/repository"
)

// TransactionCache is the read-through cache behind QueryTransaction.
type TransactionCache interface {
	Get(ctx context.Context, transactionID string) (*model.TransactionResult, error)
	Set(ctx context.Context, res *model.TransactionResult) error
}

type CoordinatorConfig struct {
	Policy             balance.Policy
	MaxAccountsPerUser int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Coordinator runs lookup, validation, state transition and ledger write for every operation.
// It never takes locks: mutating calls must arrive through Ledger, which holds the account lock.
type Coordinator struct {
	store  repository.Store
	ledger *ledger.Ledger
	cache  TransactionCache
	bus    repository.MessageBus
	cfg    CoordinatorConfig
	logger *zap.Logger
}

func NewCoordinator(store repository.Store, bus repository.MessageBus, cache TransactionCache, cfg CoordinatorConfig, logger *zap.Logger) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if bus == nil {
		bus = repository.NopBus{}
	}
	return &Coordinator{
		store:  store,
		ledger: ledger.NewWithClock(cfg.Clock),
		cache:  cache,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "coordinator")),
	}
}

func (c *Coordinator) UseBalance(ctx context.Context, req model.UseBalanceRequest) (*model.TransactionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var located *model.Account
	var recorded *model.Transaction
	err := c.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		acc, err := q.GetAccountByNumber(ctx, req.AccountNumber)
		if err != nil {
			return err
		}
		before := *acc
		located = &before

		user, err := q.GetUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		if acc.UserID != user.ID {
			return model.ErrUserAccountMismatch
		}

		if _, err := balance.Use(acc, req.Amount); err != nil {
			return err
		}
		if err := q.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		recorded, err = c.ledger.RecordSuccess(ctx, q, acc, model.TransactionTypeUse, req.Amount)
		return err
	})
	if err != nil {
		return nil, c.fail(ctx, located, model.TransactionTypeUse, req.Amount, "", err)
	}

	c.logger.Info("balance used",
		zap.String("account_number", recorded.AccountNumber),
		zap.String("transaction_id", recorded.TransactionID),
		zap.Int64("amount", recorded.Amount),
		zap.Int64("balance", recorded.BalanceSnapshot),
	)
	c.publish(recorded)
	return model.NewTransactionResult(recorded), nil
}

func (c *Coordinator) CancelBalance(ctx context.Context, req model.CancelBalanceRequest) (*model.TransactionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var located *model.Account
	var recorded *model.Transaction
	err := c.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		prior, err := q.GetTransaction(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		acc, err := q.GetAccountByNumber(ctx, req.AccountNumber)
		if err != nil {
			return err
		}
		before := *acc
		located = &before

		if _, err := balance.Cancel(acc, prior, req.Amount, c.cfg.Clock(), c.cfg.Policy); err != nil {
			return err
		}
		if err := q.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		recorded, err = c.ledger.RecordCancel(ctx, q, acc, model.TransactionResultSuccess, req.Amount, prior.TransactionID)
		return err
	})
	if err != nil {
		return nil, c.fail(ctx, located, model.TransactionTypeCancel, req.Amount, req.TransactionID, err)
	}

	c.logger.Info("balance cancelled",
		zap.String("account_number", recorded.AccountNumber),
		zap.String("transaction_id", recorded.TransactionID),
		zap.String("cancelled_transaction_id", req.TransactionID),
		zap.Int64("amount", recorded.Amount),
		zap.Int64("balance", recorded.BalanceSnapshot),
	)
	c.publish(recorded)
	return model.NewTransactionResult(recorded), nil
}

// fail records a Failed entry for a business error raised after the account was located and
// returns cause. The success unit of work is already rolled back at this point. reverses is
// the transaction a failed cancel tried to reverse.
func (c *Coordinator) fail(ctx context.Context, located *model.Account, typ model.TransactionType, amount int64, reverses string, cause error) error {
	if !model.IsBusiness(cause) {
		c.logger.Error("transaction aborted", zap.String("type", string(typ)), zap.Error(cause))
		return cause
	}
	if located == nil {
		return cause
	}

	var recorded *model.Transaction
	err := c.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		var err error
		if typ == model.TransactionTypeCancel {
			recorded, err = c.ledger.RecordCancel(ctx, q, located, model.TransactionResultFailed, amount, reverses)
		} else {
			recorded, err = c.ledger.RecordFailure(ctx, q, located, typ, amount)
		}
		return err
	})
	if err != nil {
		c.logger.Error("failed to record failed transaction",
			zap.String("account_number", located.Number),
			zap.String("type", string(typ)),
			zap.Int64("amount", amount),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return cause
	}

	c.logger.Info("transaction rejected",
		zap.String("account_number", located.Number),
		zap.String("transaction_id", recorded.TransactionID),
		zap.String("type", string(typ)),
		zap.Int64("amount", amount),
		zap.String("code", string(model.AsError(cause).Code)),
	)
	c.publish(recorded)
	return cause
}

func (c *Coordinator) publish(t *model.Transaction) {
	metrics.TransactionsRecorded.WithLabelValues(string(t.Type), string(t.Result)).Inc()

	data, err := repository.EncodeTransactionEvent(t, c.cfg.Clock())
	if err != nil {
		metrics.EventPublishErrors.Inc()
		c.logger.Error("failed to encode ledger event", zap.String("transaction_id", t.TransactionID), zap.Error(err))
		return
	}
	if err := c.bus.Publish(model.TopicTransactionRecorded, data); err != nil {
		metrics.EventPublishErrors.Inc()
		c.logger.Warn("failed to publish ledger event", zap.String("transaction_id", t.TransactionID), zap.Error(err))
	}
}

// QueryTransaction reads a transaction by correlation id. It takes no lock.
func (c *Coordinator) QueryTransaction(ctx context.Context, transactionID string) (*model.TransactionResult, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", model.ErrInvalidRequest)
	}

	if c.cache != nil {
		res, err := c.cache.Get(ctx, transactionID)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			c.logger.Warn("transaction cache unavailable", zap.String("transaction_id", transactionID), zap.Error(err))
		}
	}

	t, err := c.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	res := model.NewTransactionResult(t)

	if c.cache != nil {
		if err := c.cache.Set(ctx, res); err != nil {
			c.logger.Warn("failed to cache transaction", zap.String("transaction_id", transactionID), zap.Error(err))
		}
	}
	return res, nil
}

// ProjectTransaction applies a ledger event to the transaction cache.
func (c *Coordinator) ProjectTransaction(ctx context.Context, event model.TransactionEvent) error {
	if c.cache == nil {
		return nil
	}
	res := event.Transaction
	if err := c.cache.Set(ctx, &res); err != nil {
		return fmt.Errorf("project transaction %s: %w", res.TransactionID, err)
	}
	return nil
}

func (c *Coordinator) CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.AccountUser, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	u := &model.AccountUser{Name: req.Name}
	if err := c.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	c.logger.Info("user created", zap.Int64("user_id", u.ID))
	return u, nil
}

func (c *Coordinator) CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.AccountInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var acc *model.Account
	err := c.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		if _, err := q.GetUser(ctx, req.UserID); err != nil {
			return err
		}
		n, err := q.CountAccountsByUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		if n >= c.cfg.MaxAccountsPerUser {
			return model.ErrMaxAccountsPerUser
		}

		number, err := q.NextAccountNumber(ctx)
		if err != nil {
			return err
		}
		acc = &model.Account{
			UserID:       req.UserID,
			Number:       number,
			Status:       model.AccountStatusActive,
			Balance:      req.InitialBalance,
			RegisteredAt: c.cfg.Clock(),
		}
		return q.CreateAccount(ctx, acc)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("account created", zap.Int64("user_id", acc.UserID), zap.String("account_number", acc.Number))
	return model.NewAccountInfo(acc), nil
}

func (c *Coordinator) CloseAccount(ctx context.Context, req model.CloseAccountRequest) (*model.AccountInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var acc *model.Account
	err := c.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		user, err := q.GetUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		acc, err = q.GetAccountByNumber(ctx, req.AccountNumber)
		if err != nil {
			return err
		}
		if acc.UserID != user.ID {
			return model.ErrUserAccountMismatch
		}
		if err := balance.Close(acc, c.cfg.Clock()); err != nil {
			return err
		}
		return q.UpdateAccount(ctx, acc)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("account closed", zap.Int64("user_id", acc.UserID), zap.String("account_number", acc.Number))
	return model.NewAccountInfo(acc), nil
}

func (c *Coordinator) ListAccounts(ctx context.Context, userID int64) ([]*model.AccountInfo, error) {
	if _, err := c.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	accounts, err := c.store.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.AccountInfo, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, model.NewAccountInfo(a))
	}
	return out, nil
}
