package balance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/model"
)

func activeAccount(balance int64) *model.Account {
	return &model.Account{ID: 1, UserID: 7, Number: "1000000000", Status: model.AccountStatusActive, Balance: balance}
}

func TestUse(t *testing.T) {
	tests := []struct {
		name        string
		account     *model.Account
		amount      int64
		wantBalance int64
		wantErr     error
	}{
		{name: "debits balance", account: activeAccount(10000), amount: 1000, wantBalance: 9000},
		{name: "uses whole balance", account: activeAccount(1000), amount: 1000, wantBalance: 0},
		{name: "insufficient funds", account: activeAccount(100), amount: 1000, wantBalance: 100, wantErr: model.ErrInsufficientFunds},
		{
			name:        "closed account wins over insufficient funds",
			account:     &model.Account{ID: 1, Status: model.AccountStatusClosed, Balance: 0},
			amount:      1000,
			wantBalance: 0,
			wantErr:     model.ErrAccountClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Use(tt.account, tt.amount)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantBalance, got)
			assert.Equal(t, tt.wantBalance, tt.account.Balance)
		})
	}
}

func TestCancel(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	prior := func(accountID, amount int64, at time.Time) *model.Transaction {
		return &model.Transaction{AccountID: accountID, Amount: amount, Type: model.TransactionTypeUse, Result: model.TransactionResultSuccess, TransactedAt: at}
	}

	t.Run("credits the original amount", func(t *testing.T) {
		acc := activeAccount(10000)
		got, err := Cancel(acc, prior(1, 1000, now.Add(-time.Hour)), 1000, now, DefaultPolicy())
		require.NoError(t, err)
		assert.Equal(t, int64(11000), got)
	})

	t.Run("account mismatch is checked first", func(t *testing.T) {
		acc := &model.Account{ID: 1, Status: model.AccountStatusClosed, Balance: 500}
		_, err := Cancel(acc, prior(2, 1000, now.AddDate(-3, 0, 0)), 10, now, DefaultPolicy())
		assert.ErrorIs(t, err, model.ErrTransactionAccountMismatch)
		assert.Equal(t, int64(500), acc.Balance)
	})

	t.Run("only successful uses are cancellable", func(t *testing.T) {
		failed := prior(1, 1000, now)
		failed.Result = model.TransactionResultFailed
		cancel := prior(1, 1000, now)
		cancel.Type = model.TransactionTypeCancel

		for _, p := range []*model.Transaction{failed, cancel} {
			acc := activeAccount(500)
			_, err := Cancel(acc, p, 1000, now, DefaultPolicy())
			assert.ErrorIs(t, err, model.ErrTransactionNotCancellable)
			assert.Equal(t, int64(500), acc.Balance)
		}
	})

	t.Run("a use is reversed at most once", func(t *testing.T) {
		reversed := prior(1, 1000, now)
		reversed.CancelledBy = "c0ffee"

		acc := &model.Account{ID: 1, Status: model.AccountStatusClosed, Balance: 500}
		_, err := Cancel(acc, reversed, 1000, now, DefaultPolicy())
		assert.ErrorIs(t, err, model.ErrTransactionAlreadyCanceled, "checked before account state")
		assert.Equal(t, int64(500), acc.Balance)
	})

	t.Run("closed account before amount", func(t *testing.T) {
		acc := &model.Account{ID: 1, Status: model.AccountStatusClosed}
		_, err := Cancel(acc, prior(1, 1000, now), 10, now, DefaultPolicy())
		assert.ErrorIs(t, err, model.ErrAccountClosed)
	})

	t.Run("partial cancel before window", func(t *testing.T) {
		acc := activeAccount(500)
		_, err := Cancel(acc, prior(1, 1000, now.AddDate(-2, 0, 0)), 999, now, DefaultPolicy())
		assert.ErrorIs(t, err, model.ErrPartialCancelNotAllowed)
	})

	for _, amount := range []int64{1, 999, 1001, 5000} {
		acc := activeAccount(500)
		_, err := Cancel(acc, prior(1, 1000, now), amount, now, DefaultPolicy())
		assert.ErrorIs(t, err, model.ErrPartialCancelNotAllowed, "amount %d", amount)
		assert.Equal(t, int64(500), acc.Balance)
	}

	t.Run("one year and one day old", func(t *testing.T) {
		acc := activeAccount(500)
		_, err := Cancel(acc, prior(1, 1000, now.AddDate(-1, 0, -1)), 1000, now, DefaultPolicy())
		assert.ErrorIs(t, err, model.ErrCancelWindowExpired)
		assert.Equal(t, int64(500), acc.Balance)
	})
}

func TestCancel_WindowBoundary(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	cutoff := CancelCutoff(now, DefaultPolicy())

	inside := &model.Transaction{AccountID: 1, Amount: 10, Type: model.TransactionTypeUse, Result: model.TransactionResultSuccess, TransactedAt: cutoff.Add(time.Second)}
	_, err := Cancel(activeAccount(0), inside, 10, now, DefaultPolicy())
	assert.NoError(t, err)

	outside := &model.Transaction{AccountID: 1, Amount: 10, Type: model.TransactionTypeUse, Result: model.TransactionResultSuccess, TransactedAt: cutoff.Add(-time.Second)}
	_, err = Cancel(activeAccount(0), outside, 10, now, DefaultPolicy())
	assert.ErrorIs(t, err, model.ErrCancelWindowExpired)
}

func TestClose(t *testing.T) {
	now := time.Now()

	acc := activeAccount(0)
	require.NoError(t, Close(acc, now))
	assert.Equal(t, model.AccountStatusClosed, acc.Status)
	require.NotNil(t, acc.UnregisteredAt)

	assert.ErrorIs(t, Close(acc, now), model.ErrAccountClosed)
	assert.ErrorIs(t, Close(activeAccount(1), now), model.ErrBalanceNotEmpty)
}
