package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"tally/internal/model"
)

const firstAccountNumber = 1000000000

// now stamps CreatedAt/UpdatedAt; Postgres uses its own now() instead.
var now = time.Now

// MemoryStore is a Store kept in process memory, for local runs and tests.
// Units of work run one at a time against a private copy that replaces the
// committed state only when fn succeeds.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *memData
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

type memData struct {
	users    map[int64]model.AccountUser
	accounts map[int64]model.Account
	byNumber map[string]int64
	txns     []model.Transaction
	txnByID  map[string]int
	// use id -> id of the successful cancel that reversed it
	cancelledBy map[string]string

	lastUser   int64
	lastAcct   int64
	lastNumber int64
}

func newMemData() *memData {
	return &memData{
		users:       map[int64]model.AccountUser{},
		accounts:    map[int64]model.Account{},
		byNumber:    map[string]int64{},
		txnByID:     map[string]int{},
		cancelledBy: map[string]string{},
		lastNumber:  firstAccountNumber - 1,
	}
}

func (d *memData) clone() *memData {
	c := *d
	c.users = maps.Clone(d.users)
	c.accounts = maps.Clone(d.accounts)
	c.byNumber = maps.Clone(d.byNumber)
	c.txns = slices.Clone(d.txns)
	c.txnByID = maps.Clone(d.txnByID)
	c.cancelledBy = maps.Clone(d.cancelledBy)
	return &c
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &memQueries{d: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) read() *memQueries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &memQueries{d: s.data}
}

// Reads outside a unit of work see the last committed state; committed states are never mutated.

func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*model.AccountUser, error) {
	return s.read().GetUser(ctx, id)
}

func (s *MemoryStore) GetAccountByNumber(ctx context.Context, number string) (*model.Account, error) {
	return s.read().GetAccountByNumber(ctx, number)
}

func (s *MemoryStore) ListAccountsByUser(ctx context.Context, userID int64) ([]*model.Account, error) {
	return s.read().ListAccountsByUser(ctx, userID)
}

func (s *MemoryStore) CountAccountsByUser(ctx context.Context, userID int64) (int, error) {
	return s.read().CountAccountsByUser(ctx, userID)
}

func (s *MemoryStore) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	return s.read().GetTransaction(ctx, transactionID)
}

func (s *MemoryStore) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]*model.Transaction, error) {
	return s.read().ListTransactionsByAccount(ctx, accountID)
}

// Writes outside a unit of work are units of work of their own.

func (s *MemoryStore) CreateUser(ctx context.Context, u *model.AccountUser) error {
	return s.InTx(ctx, func(ctx context.Context, q Queries) error { return q.CreateUser(ctx, u) })
}

func (s *MemoryStore) NextAccountNumber(ctx context.Context) (n string, err error) {
	err = s.InTx(ctx, func(ctx context.Context, q Queries) error {
		n, err = q.NextAccountNumber(ctx)
		return err
	})
	return n, err
}

func (s *MemoryStore) CreateAccount(ctx context.Context, a *model.Account) error {
	return s.InTx(ctx, func(ctx context.Context, q Queries) error { return q.CreateAccount(ctx, a) })
}

func (s *MemoryStore) UpdateAccount(ctx context.Context, a *model.Account) error {
	return s.InTx(ctx, func(ctx context.Context, q Queries) error { return q.UpdateAccount(ctx, a) })
}

func (s *MemoryStore) AppendTransaction(ctx context.Context, t *model.Transaction) error {
	return s.InTx(ctx, func(ctx context.Context, q Queries) error { return q.AppendTransaction(ctx, t) })
}

type memQueries struct {
	d *memData
}

func (q *memQueries) CreateUser(_ context.Context, u *model.AccountUser) error {
	q.d.lastUser++
	ts := now()
	u.ID, u.CreatedAt, u.UpdatedAt = q.d.lastUser, ts, ts
	q.d.users[u.ID] = *u
	return nil
}

func (q *memQueries) GetUser(_ context.Context, id int64) (*model.AccountUser, error) {
	u, ok := q.d.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return &u, nil
}

func (q *memQueries) NextAccountNumber(context.Context) (string, error) {
	q.d.lastNumber++
	return strconv.FormatInt(q.d.lastNumber, 10), nil
}

func (q *memQueries) CreateAccount(_ context.Context, a *model.Account) error {
	if _, ok := q.d.users[a.UserID]; !ok {
		return fmt.Errorf("insert account %s: unknown user %d", a.Number, a.UserID)
	}
	if _, taken := q.d.byNumber[a.Number]; taken {
		return fmt.Errorf("insert account %s: account number already used", a.Number)
	}
	q.d.lastAcct++
	ts := now()
	a.ID, a.CreatedAt, a.UpdatedAt = q.d.lastAcct, ts, ts
	q.d.accounts[a.ID] = *a
	q.d.byNumber[a.Number] = a.ID
	return nil
}

func (q *memQueries) GetAccountByNumber(_ context.Context, number string) (*model.Account, error) {
	id, ok := q.d.byNumber[number]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	a := q.d.accounts[id]
	return &a, nil
}

func (q *memQueries) UpdateAccount(_ context.Context, a *model.Account) error {
	if _, ok := q.d.accounts[a.ID]; !ok {
		return model.ErrAccountNotFound
	}
	if a.Balance < 0 {
		return fmt.Errorf("update account %s: negative balance %d", a.Number, a.Balance)
	}
	a.UpdatedAt = now()
	q.d.accounts[a.ID] = *a
	return nil
}

func (q *memQueries) ListAccountsByUser(_ context.Context, userID int64) ([]*model.Account, error) {
	var out []*model.Account
	for _, a := range q.d.accounts {
		if a.UserID == userID {
			out = append(out, &a)
		}
	}
	slices.SortFunc(out, func(a, b *model.Account) int { return int(a.ID - b.ID) })
	return out, nil
}

func (q *memQueries) CountAccountsByUser(ctx context.Context, userID int64) (int, error) {
	accounts, err := q.ListAccountsByUser(ctx, userID)
	return len(accounts), err
}

func (q *memQueries) AppendTransaction(_ context.Context, t *model.Transaction) error {
	if _, dup := q.d.txnByID[t.TransactionID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTransactionID, t.TransactionID)
	}
	acc, ok := q.d.accounts[t.AccountID]
	if !ok {
		return fmt.Errorf("insert transaction %s: unknown account %d", t.TransactionID, t.AccountID)
	}
	reverses := t.CancelsTransactionID != "" && t.Result == model.TransactionResultSuccess
	if _, done := q.d.cancelledBy[t.CancelsTransactionID]; reverses && done {
		return fmt.Errorf("insert transaction %s: %w", t.TransactionID, model.ErrTransactionAlreadyCanceled)
	}

	t.ID = int64(len(q.d.txns) + 1)
	t.AccountNumber = acc.Number
	t.CreatedAt = now()
	t.CancelledBy = ""
	q.d.txnByID[t.TransactionID] = len(q.d.txns)
	q.d.txns = append(q.d.txns, *t)
	if reverses {
		q.d.cancelledBy[t.CancelsTransactionID] = t.TransactionID
	}
	return nil
}

func (q *memQueries) GetTransaction(_ context.Context, transactionID string) (*model.Transaction, error) {
	i, ok := q.d.txnByID[transactionID]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}
	t := q.d.txns[i]
	t.CancelledBy = q.d.cancelledBy[t.TransactionID]
	return &t, nil
}

func (q *memQueries) ListTransactionsByAccount(_ context.Context, accountID int64) ([]*model.Transaction, error) {
	var out []*model.Transaction
	for _, t := range q.d.txns {
		if t.AccountID == accountID {
			t.CancelledBy = q.d.cancelledBy[t.TransactionID]
			out = append(out, &t)
		}
	}
	return out, nil
}
