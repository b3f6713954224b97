// Package ledger appends transaction records for balance mutations.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tally/internal/model"
	"tally/internal/repository"
)

// Ledger writes Success and Failed records through the Queries of the caller's unit of work.
type Ledger struct {
	now   func() time.Time
	newID func() string
}

func New() *Ledger {
	return &Ledger{now: time.Now, newID: NewTransactionID}
}

// NewWithClock is used by tests that pin the business time.
func NewWithClock(now func() time.Time) *Ledger {
	return &Ledger{now: now, newID: NewTransactionID}
}

// NewTransactionID returns a random correlation id: 32 lowercase hex characters.
func NewTransactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RecordSuccess appends a Success record. acc must already hold the post-mutation balance.
func (l *Ledger) RecordSuccess(ctx context.Context, q repository.Queries, acc *model.Account, typ model.TransactionType, amount int64) (*model.Transaction, error) {
	return l.record(ctx, q, acc, typ, model.TransactionResultSuccess, amount, "")
}

// RecordFailure appends a Failed record snapshotting the unchanged balance.
func (l *Ledger) RecordFailure(ctx context.Context, q repository.Queries, acc *model.Account, typ model.TransactionType, amount int64) (*model.Transaction, error) {
	return l.record(ctx, q, acc, typ, model.TransactionResultFailed, amount, "")
}

// RecordCancel appends a Cancel record linked to the use it reverses. A second successful
// cancel of the same use is rejected by the store with model.ErrTransactionAlreadyCanceled.
func (l *Ledger) RecordCancel(ctx context.Context, q repository.Queries, acc *model.Account, result model.TransactionResultType, amount int64, reverses string) (*model.Transaction, error) {
	return l.record(ctx, q, acc, model.TransactionTypeCancel, result, amount, reverses)
}

func (l *Ledger) record(ctx context.Context, q repository.Queries, acc *model.Account, typ model.TransactionType, result model.TransactionResultType, amount int64, reverses string) (*model.Transaction, error) {
	t := &model.Transaction{
		TransactionID:        l.newID(),
		Type:                 typ,
		Result:               result,
		Amount:               amount,
		BalanceSnapshot:      acc.Balance,
		AccountID:            acc.ID,
		AccountNumber:        acc.Number,
		TransactedAt:         l.now(),
		CancelsTransactionID: reverses,
	}
	if err := q.AppendTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("record %s %s for account %s: %w", typ, result, acc.Number, err)
	}
	return t, nil
}
