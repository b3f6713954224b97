package model

import (
	"fmt"
	"strings"
	"time"
)

type TransactionType string

const (
	TransactionTypeUse    TransactionType = "USE"
	TransactionTypeCancel TransactionType = "CANCEL"
)

type TransactionResultType string

const (
	TransactionResultSuccess TransactionResultType = "S"
	TransactionResultFailed  TransactionResultType = "F"
)

// Transaction is one ledger record. Records are written once and never updated.
// TransactedAt is the business time of the attempt; CreatedAt is when the row was stored.
//
// A Cancel record carries the id of the use it reverses in CancelsTransactionID.
// CancelledBy is not stored on the row: lookups fill it with the id of the successful
// cancel that reversed this record, if any.
type Transaction struct {
	ID              int64                 `json:"id"`
	TransactionID   string                `json:"transaction_id"`
	Type            TransactionType       `json:"transaction_type"`
	Result          TransactionResultType `json:"transaction_result"`
	Amount          int64                 `json:"amount"`
	BalanceSnapshot int64                 `json:"balance_snapshot"`
	AccountID       int64                 `json:"account_id"`
	AccountNumber   string                `json:"account_number"`
	TransactedAt    time.Time             `json:"transacted_at"`
	CreatedAt       time.Time             `json:"created_at"`

	CancelsTransactionID string `json:"cancels_transaction_id,omitempty"`
	CancelledBy          string `json:"cancelled_by,omitempty"`
}

// TransactionResult is the client-facing projection of a Transaction.
type TransactionResult struct {
	AccountNumber   string                `json:"accountNumber"`
	Type            TransactionType       `json:"transactionType"`
	Result          TransactionResultType `json:"transactionResult"`
	Amount          int64                 `json:"amount"`
	BalanceSnapshot int64                 `json:"balanceSnapshot"`
	TransactionID   string                `json:"transactionId"`
	TransactedAt    time.Time             `json:"transactedAt"`
}

func NewTransactionResult(t *Transaction) *TransactionResult {
	return &TransactionResult{
		AccountNumber:   t.AccountNumber,
		Type:            t.Type,
		Result:          t.Result,
		Amount:          t.Amount,
		BalanceSnapshot: t.BalanceSnapshot,
		TransactionID:   t.TransactionID,
		TransactedAt:    t.TransactedAt,
	}
}

// AccountKeyed is implemented by requests that mutate a single account.
// The key selects the lock that serializes the request.
type AccountKeyed interface {
	AccountKey() string
}

type UseBalanceRequest struct {
	UserID        int64  `json:"userId"`
	AccountNumber string `json:"accountNumber"`
	Amount        int64  `json:"amount"`
}

func (r UseBalanceRequest) AccountKey() string { return r.AccountNumber }

func (r UseBalanceRequest) Validate() error {
	if strings.TrimSpace(r.AccountNumber) == "" {
		return fmt.Errorf("%w: account number is required", ErrInvalidRequest)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return nil
}

type CancelBalanceRequest struct {
	TransactionID string `json:"transactionId"`
	AccountNumber string `json:"accountNumber"`
	Amount        int64  `json:"amount"`
}

func (r CancelBalanceRequest) AccountKey() string { return r.AccountNumber }

func (r CancelBalanceRequest) Validate() error {
	if strings.TrimSpace(r.TransactionID) == "" || strings.TrimSpace(r.AccountNumber) == "" {
		return fmt.Errorf("%w: transaction id and account number are required", ErrInvalidRequest)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return nil
}

// TransactionEvent is published on the message bus for every recorded transaction.
type TransactionEvent struct {
	Transaction TransactionResult `json:"transaction"`
	RecordedAt  time.Time         `json:"recorded_at"`
}

const TopicTransactionRecorded = "ledger.transactions.recorded"
