package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tally/internal/model"
)

var ErrDuplicateTransactionID = errors.New("transaction id already recorded")

const (
	pgUniqueViolation = "23505"
	// partial unique index over successful cancels
	uniqueCancelIndex = "uq_transactions_cancels"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LedgerRepo is the PostgreSQL Store.
type LedgerRepo struct {
	pgQueries
	dbPool *pgxpool.Pool
}

var _ Store = (*LedgerRepo)(nil)

func NewLedgerRepo(db *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pgQueries: pgQueries{db: db}, dbPool: db}
}

func (r *LedgerRepo) InTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	return pgx.BeginFunc(ctx, r.dbPool, func(tx pgx.Tx) error {
		return fn(ctx, &pgQueries{db: tx, inTx: true})
	})
}

type pgQueries struct {
	db dbtx
	// Inside a unit of work account rows are read FOR UPDATE.
	inTx bool
}

func (q *pgQueries) CreateUser(ctx context.Context, u *model.AccountUser) error {
	query := `
		INSERT INTO account_users (name)
		VALUES ($1)
		RETURNING id, created_at, updated_at`
	if err := q.db.QueryRow(ctx, query, u.Name).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("insert account user: %w", err)
	}
	return nil
}

func (q *pgQueries) GetUser(ctx context.Context, id int64) (*model.AccountUser, error) {
	query := `SELECT id, name, created_at, updated_at FROM account_users WHERE id = $1`

	var u model.AccountUser
	err := q.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("query account user %d: %w", id, err)
	}
	return &u, nil
}

func (q *pgQueries) NextAccountNumber(ctx context.Context) (string, error) {
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT nextval('account_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("next account number: %w", err)
	}
	return strconv.FormatInt(n, 10), nil
}

func (q *pgQueries) CreateAccount(ctx context.Context, a *model.Account) error {
	query := `
		INSERT INTO accounts (user_id, account_number, account_status, balance, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	err := q.db.QueryRow(ctx, query, a.UserID, a.Number, a.Status, a.Balance, a.RegisteredAt).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", a.Number, err)
	}
	return nil
}

const accountColumns = `id, user_id, account_number, account_status, balance, registered_at, unregistered_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Number, &a.Status, &a.Balance,
		&a.RegisteredAt, &a.UnregisteredAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q *pgQueries) GetAccountByNumber(ctx context.Context, number string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	if q.inTx {
		query += ` FOR UPDATE`
	}

	a, err := scanAccount(q.db.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("query account %s: %w", number, err)
	}
	return a, nil
}

func (q *pgQueries) UpdateAccount(ctx context.Context, a *model.Account) error {
	query := `
		UPDATE accounts
		SET account_status = $2, balance = $3, unregistered_at = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`
	err := q.db.QueryRow(ctx, query, a.ID, a.Status, a.Balance, a.UnregisteredAt).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrAccountNotFound
		}
		return fmt.Errorf("update account %s: %w", a.Number, err)
	}
	return nil
}

func (q *pgQueries) ListAccountsByUser(ctx context.Context, userID int64) ([]*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY id`

	rows, err := q.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query accounts of user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *pgQueries) CountAccountsByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM accounts WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts of user %d: %w", userID, err)
	}
	return n, nil
}

func (q *pgQueries) AppendTransaction(ctx context.Context, t *model.Transaction) error {
	query := `
		INSERT INTO transactions
			(transaction_id, transaction_type, transaction_result, account_id, amount, balance_snapshot,
			 transacted_at, cancels_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING id, created_at`
	err := q.db.QueryRow(ctx, query,
		t.TransactionID, t.Type, t.Result, t.AccountID, t.Amount, t.BalanceSnapshot, t.TransactedAt,
		t.CancelsTransactionID,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == uniqueCancelIndex {
				return fmt.Errorf("insert transaction %s: %w", t.TransactionID, model.ErrTransactionAlreadyCanceled)
			}
			return fmt.Errorf("%w: %s", ErrDuplicateTransactionID, t.TransactionID)
		}
		return fmt.Errorf("insert transaction %s: %w", t.TransactionID, err)
	}
	return nil
}

const transactionColumns = `t.id, t.transaction_id, t.transaction_type, t.transaction_result, t.amount,
	t.balance_snapshot, t.account_id, a.account_number, t.transacted_at, t.created_at,
	COALESCE(t.cancels_transaction_id, ''),
	COALESCE((SELECT c.transaction_id FROM transactions c
	          WHERE c.cancels_transaction_id = t.transaction_id AND c.transaction_result = 'S'), '')`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.TransactionID, &t.Type, &t.Result, &t.Amount,
		&t.BalanceSnapshot, &t.AccountID, &t.AccountNumber, &t.TransactedAt, &t.CreatedAt,
		&t.CancelsTransactionID, &t.CancelledBy)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *pgQueries) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.transaction_id = $1`

	t, err := scanTransaction(q.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("query transaction %s: %w", transactionID, err)
	}
	return t, nil
}

func (q *pgQueries) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.account_id = $1
		ORDER BY t.id`

	rows, err := q.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("query transactions of account %d: %w", accountID, err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
