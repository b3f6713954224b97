package repository

import (
	"context"

	"tally/internal/model"
)

// Queries are the read-by-key and write operations on users, accounts and the ledger.
// Lookups return model.ErrUserNotFound, model.ErrAccountNotFound or model.ErrTransactionNotFound
// on a miss. Transactions can only be appended.
type Queries interface {
	CreateUser(ctx context.Context, u *model.AccountUser) error
	GetUser(ctx context.Context, id int64) (*model.AccountUser, error)

	NextAccountNumber(ctx context.Context) (string, error)
	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccountByNumber(ctx context.Context, number string) (*model.Account, error)
	UpdateAccount(ctx context.Context, a *model.Account) error
	ListAccountsByUser(ctx context.Context, userID int64) ([]*model.Account, error)
	CountAccountsByUser(ctx context.Context, userID int64) (int, error)

	AppendTransaction(ctx context.Context, t *model.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID int64) ([]*model.Transaction, error)
}

// Store is the persistent store. InTx runs fn as one unit of work: everything fn wrote is
// committed when it returns nil and discarded when it returns an error or panics.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
}
