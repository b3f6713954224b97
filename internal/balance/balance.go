// Package balance holds the account state machine. It is pure: no I/O, no locking.
// Callers must hold the account lock and persist the mutated account themselves.
package balance

import (
	"time"

	"tally/internal/model"
)

// Policy carries the tunables of the state machine.
type Policy struct {
	CancelWindowYears int
}

func DefaultPolicy() Policy {
	return Policy{CancelWindowYears: 1}
}

// Use debits amount from an active account. It is all-or-nothing.
func Use(acc *model.Account, amount int64) (int64, error) {
	if !acc.IsActive() {
		return acc.Balance, model.ErrAccountClosed
	}
	if amount > acc.Balance {
		return acc.Balance, model.ErrInsufficientFunds
	}
	acc.Balance -= amount
	return acc.Balance, nil
}

// Cancel reverses a prior successful use in full, at most once. Checks run in a fixed order:
// linkage, kind of the prior record, earlier reversal, account state, amount, cancel window.
func Cancel(acc *model.Account, prior *model.Transaction, amount int64, now time.Time, p Policy) (int64, error) {
	if prior.AccountID != acc.ID {
		return acc.Balance, model.ErrTransactionAccountMismatch
	}
	if prior.Type != model.TransactionTypeUse || prior.Result != model.TransactionResultSuccess {
		return acc.Balance, model.ErrTransactionNotCancellable
	}
	if prior.CancelledBy != "" {
		return acc.Balance, model.ErrTransactionAlreadyCanceled
	}
	if !acc.IsActive() {
		return acc.Balance, model.ErrAccountClosed
	}
	if amount != prior.Amount {
		return acc.Balance, model.ErrPartialCancelNotAllowed
	}
	if prior.TransactedAt.Before(CancelCutoff(now, p)) {
		return acc.Balance, model.ErrCancelWindowExpired
	}
	acc.Balance += amount
	return acc.Balance, nil
}

// CancelCutoff is the oldest business time a transaction may have and still be cancelled.
func CancelCutoff(now time.Time, p Policy) time.Time {
	return now.AddDate(-p.CancelWindowYears, 0, 0)
}

// Close moves an account to the terminal state. Only empty accounts close.
func Close(acc *model.Account, now time.Time) error {
	if !acc.IsActive() {
		return model.ErrAccountClosed
	}
	if acc.Balance > 0 {
		return model.ErrBalanceNotEmpty
	}
	acc.Status = model.AccountStatusClosed
	acc.UnregisteredAt = &now
	return nil
}
