package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/model"
)

func seedAccount(t *testing.T, s *MemoryStore, balance int64) (*model.AccountUser, *model.Account) {
	t.Helper()
	ctx := context.Background()

	u := &model.AccountUser{Name: "kim"}
	require.NoError(t, s.CreateUser(ctx, u))

	number, err := s.NextAccountNumber(ctx)
	require.NoError(t, err)

	a := &model.Account{
		UserID:       u.ID,
		Number:       number,
		Status:       model.AccountStatusActive,
		Balance:      balance,
		RegisteredAt: time.Now(),
	}
	require.NoError(t, s.CreateAccount(ctx, a))
	return u, a
}

func TestMemoryStore_AccountNumbersAreSequential(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.NextAccountNumber(ctx)
	require.NoError(t, err)
	second, err := s.NextAccountNumber(ctx)
	require.NoError(t, err)

	assert.Equal(t, "1000000000", first)
	assert.Equal(t, "1000000001", second)
}

func TestMemoryStore_InTxCommits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, acc := seedAccount(t, s, 1000)

	err := s.InTx(ctx, func(ctx context.Context, q Queries) error {
		a, err := q.GetAccountByNumber(ctx, acc.Number)
		if err != nil {
			return err
		}
		a.Balance = 700
		if err := q.UpdateAccount(ctx, a); err != nil {
			return err
		}
		return q.AppendTransaction(ctx, &model.Transaction{
			TransactionID:   "c0ffee",
			Type:            model.TransactionTypeUse,
			Result:          model.TransactionResultSuccess,
			Amount:          300,
			BalanceSnapshot: 700,
			AccountID:       a.ID,
			TransactedAt:    time.Now(),
		})
	})
	require.NoError(t, err)

	got, err := s.GetAccountByNumber(ctx, acc.Number)
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.Balance)

	txn, err := s.GetTransaction(ctx, "c0ffee")
	require.NoError(t, err)
	assert.Equal(t, acc.Number, txn.AccountNumber)
	assert.False(t, txn.CreatedAt.IsZero())
}

func TestMemoryStore_InTxRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, acc := seedAccount(t, s, 1000)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, q Queries) error {
		a, err := q.GetAccountByNumber(ctx, acc.Number)
		if err != nil {
			return err
		}
		a.Balance = 0
		if err := q.UpdateAccount(ctx, a); err != nil {
			return err
		}
		if err := q.AppendTransaction(ctx, &model.Transaction{
			TransactionID: "rolled-back",
			Type:          model.TransactionTypeUse,
			Result:        model.TransactionResultSuccess,
			Amount:        1000,
			AccountID:     a.ID,
			TransactedAt:  time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetAccountByNumber(ctx, acc.Number)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Balance)

	_, err = s.GetTransaction(ctx, "rolled-back")
	assert.ErrorIs(t, err, model.ErrTransactionNotFound)
}

func TestMemoryStore_ReadsDoNotSeeUncommittedWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, acc := seedAccount(t, s, 500)

	err := s.InTx(ctx, func(ctx context.Context, q Queries) error {
		a, err := q.GetAccountByNumber(ctx, acc.Number)
		require.NoError(t, err)
		a.Balance = 1
		require.NoError(t, q.UpdateAccount(ctx, a))

		outside, err := s.GetAccountByNumber(ctx, acc.Number)
		require.NoError(t, err)
		assert.Equal(t, int64(500), outside.Balance)
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetAccountByNumber(ctx, acc.Number)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Balance)
}

func TestMemoryStore_DuplicateTransactionID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, acc := seedAccount(t, s, 100)

	txn := func() *model.Transaction {
		return &model.Transaction{
			TransactionID: "same",
			Type:          model.TransactionTypeUse,
			Result:        model.TransactionResultFailed,
			Amount:        10,
			AccountID:     acc.ID,
			TransactedAt:  time.Now(),
		}
	}
	require.NoError(t, s.AppendTransaction(ctx, txn()))
	assert.ErrorIs(t, s.AppendTransaction(ctx, txn()), ErrDuplicateTransactionID)

	list, err := s.ListTransactionsByAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore_LookupMisses(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetUser(ctx, 42)
	assert.ErrorIs(t, err, model.ErrUserNotFound)

	_, err = s.GetAccountByNumber(ctx, "1999999999")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)

	_, err = s.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrTransactionNotFound)
}

func TestMemoryStore_NegativeBalanceRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, acc := seedAccount(t, s, 10)

	acc.Balance = -1
	assert.Error(t, s.UpdateAccount(ctx, acc))

	got, err := s.GetAccountByNumber(ctx, acc.Number)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Balance)
}

func TestMemoryStore_AccountsByUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u, first := seedAccount(t, s, 0)

	number, err := s.NextAccountNumber(ctx)
	require.NoError(t, err)
	second := &model.Account{UserID: u.ID, Number: number, Status: model.AccountStatusActive, RegisteredAt: time.Now()}
	require.NoError(t, s.CreateAccount(ctx, second))

	n, err := s.CountAccountsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := s.ListAccountsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Number, list[0].Number)
	assert.Equal(t, second.Number, list[1].Number)
}

func TestTransactionCache_SetGet(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cache := NewTransactionCache(rdb, time.Minute)
	ctx := context.Background()

	_, err := cache.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrCacheMiss)

	res := &model.TransactionResult{
		AccountNumber:   "1000000000",
		Type:            model.TransactionTypeUse,
		Result:          model.TransactionResultSuccess,
		Amount:          300,
		BalanceSnapshot: 700,
		TransactionID:   "abc",
		TransactedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cache.Set(ctx, res))
	assert.True(t, mr.Exists("txn:abc"))

	got, err := cache.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, res, got)

	mr.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestTransactionEvent_Decode(t *testing.T) {
	txn := &model.Transaction{
		TransactionID: "abc",
		Type:          model.TransactionTypeCancel,
		Result:        model.TransactionResultFailed,
		Amount:        50,
		AccountNumber: "1000000000",
		TransactedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := EncodeTransactionEvent(txn, txn.TransactedAt)
	require.NoError(t, err)

	event, err := DecodeTransactionEvent(data)
	require.NoError(t, err)
	assert.Equal(t, *model.NewTransactionResult(txn), event.Transaction)

	_, err = DecodeTransactionEvent([]byte(`{"transaction":{}}`))
	assert.Error(t, err)
	_, err = DecodeTransactionEvent([]byte(`not json`))
	assert.Error(t, err)
}
