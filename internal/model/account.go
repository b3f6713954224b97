package model

import (
	"fmt"
	"strings"
	"time"
)

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "IN_USE"
	AccountStatusClosed AccountStatus = "UNREGISTERED"
)

// AccountUser owns accounts. Users are seeded out of band.
type AccountUser struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account holds a balance in the smallest currency unit.
// Balance never drops below zero and a closed account is never reopened.
type Account struct {
	ID             int64         `json:"id"`
	UserID         int64         `json:"user_id"`
	Number         string        `json:"account_number"`
	Status         AccountStatus `json:"account_status"`
	Balance        int64         `json:"balance"`
	RegisteredAt   time.Time     `json:"registered_at"`
	UnregisteredAt *time.Time    `json:"unregistered_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

type AccountInfo struct {
	AccountNumber  string        `json:"accountNumber"`
	UserID         int64         `json:"userId"`
	Status         AccountStatus `json:"accountStatus"`
	Balance        int64         `json:"balance"`
	RegisteredAt   time.Time     `json:"registeredAt"`
	UnregisteredAt *time.Time    `json:"unregisteredAt,omitempty"`
}

func NewAccountInfo(a *Account) *AccountInfo {
	return &AccountInfo{
		AccountNumber:  a.Number,
		UserID:         a.UserID,
		Status:         a.Status,
		Balance:        a.Balance,
		RegisteredAt:   a.RegisteredAt,
		UnregisteredAt: a.UnregisteredAt,
	}
}

type CreateAccountRequest struct {
	UserID         int64 `json:"userId"`
	InitialBalance int64 `json:"initialBalance"`
}

func (r CreateAccountRequest) Validate() error {
	if r.InitialBalance < 0 {
		return fmt.Errorf("%w: initial balance must not be negative", ErrInvalidRequest)
	}
	return nil
}

type CloseAccountRequest struct {
	UserID        int64  `json:"userId"`
	AccountNumber string `json:"accountNumber"`
}

func (r CloseAccountRequest) AccountKey() string { return r.AccountNumber }

func (r CloseAccountRequest) Validate() error {
	if strings.TrimSpace(r.AccountNumber) == "" {
		return fmt.Errorf("%w: account number is required", ErrInvalidRequest)
	}
	return nil
}

type CreateUserRequest struct {
	Name string `json:"name"`
}

func (r CreateUserRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	return nil
}
