package model

import "errors"

// Code is the stable machine-readable error code surfaced to clients.
type Code string

const (
	CodeUserNotFound               Code = "USER_NOT_FOUND"
	CodeAccountNotFound            Code = "ACCOUNT_NOT_FOUND"
	CodeTransactionNotFound        Code = "TRANSACTION_NOT_FOUND"
	CodeUserAccountMismatch        Code = "USER_ACCOUNT_UN_MATCH"
	CodeTransactionAccountMismatch Code = "TRANSACTION_ACCOUNT_UN_MATCH"
	CodeTransactionNotCancellable  Code = "TRANSACTION_NOT_CANCELLABLE"
	CodeTransactionAlreadyCanceled Code = "TRANSACTION_ALREADY_CANCELLED"
	CodeAccountClosed              Code = "ACCOUNT_ALREADY_UNREGISTERED"
	CodeInsufficientFunds          Code = "AMOUNT_EXCEED_BALANCE"
	CodePartialCancelNotAllowed    Code = "CANCEL_MUST_FULLY"
	CodeCancelWindowExpired        Code = "TOO_OLD_ORDER_TO_CANCEL"
	CodeBalanceNotEmpty            Code = "BALANCE_NOT_EMPTY"
	CodeMaxAccountsPerUser         Code = "MAX_ACCOUNT_PER_USER_10"
	CodeLockTimeout                Code = "ACCOUNT_TRANSACTION_LOCK"
	CodeInvalidRequest             Code = "INVALID_REQUEST"
	CodeInternal                   Code = "INTERNAL_SERVER_ERROR"
)

// Error is a business error with a stable code and a human-readable description.
type Error struct {
	Code        Code   `json:"errorCode"`
	Description string `json:"errorMessage"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Description
}

var (
	ErrUserNotFound               = &Error{CodeUserNotFound, "user not found"}
	ErrAccountNotFound            = &Error{CodeAccountNotFound, "account not found"}
	ErrTransactionNotFound        = &Error{CodeTransactionNotFound, "transaction not found"}
	ErrUserAccountMismatch        = &Error{CodeUserAccountMismatch, "user is not the owner of the account"}
	ErrTransactionAccountMismatch = &Error{CodeTransactionAccountMismatch, "transaction does not belong to the account"}
	ErrTransactionNotCancellable  = &Error{CodeTransactionNotCancellable, "only a successful use can be cancelled"}
	ErrTransactionAlreadyCanceled = &Error{CodeTransactionAlreadyCanceled, "transaction has already been cancelled"}
	ErrAccountClosed              = &Error{CodeAccountClosed, "account is already unregistered"}
	ErrInsufficientFunds          = &Error{CodeInsufficientFunds, "amount exceeds account balance"}
	ErrPartialCancelNotAllowed    = &Error{CodePartialCancelNotAllowed, "cancel amount must equal the original transaction amount"}
	ErrCancelWindowExpired        = &Error{CodeCancelWindowExpired, "transaction is too old to cancel"}
	ErrBalanceNotEmpty            = &Error{CodeBalanceNotEmpty, "account with a remaining balance cannot be unregistered"}
	ErrMaxAccountsPerUser         = &Error{CodeMaxAccountsPerUser, "user has reached the maximum number of accounts"}
	ErrLockTimeout                = &Error{CodeLockTimeout, "account is in use by another transaction"}
	ErrInvalidRequest             = &Error{CodeInvalidRequest, "invalid request"}
	ErrInternal                   = &Error{CodeInternal, "internal server error"}
)

// AsError resolves err to a business error. Anything that is not one is ErrInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}

// IsLookupMiss reports whether err means the request referenced something that does not exist.
func IsLookupMiss(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsBusiness reports whether err is a known business error rather than an infrastructure failure.
func IsBusiness(err error) bool {
	var e *Error
	return errors.As(err, &e) && e != ErrInternal
}
