package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// AccountStatus is the freeze state of an account
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
)

// Account is the ledger record kept for a single identity
type Account struct {
	UID           string        `json:"uid" db:"uid" validate:"required"`
	Email         string        `json:"email" db:"email" validate:"required,email"`
	Balance       int64         `json:"balance" db:"balance"` // smallest currency unit, may be negative
	Status        AccountStatus `json:"status" db:"status" validate:"required,oneof=active frozen"`
	NegativeSince *time.Time    `json:"negativeSince" db:"negative_since"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at" validate:"required"`
	Version       int64         `json:"-" db:"version"` // for optimistic locking
}

// Validate checks field types and the negativeSince/balance relation.
func (a *Account) Validate() error {
	if err := validate.Struct(a); err != nil {
		return err
	}
	if a.NegativeSince != nil && a.Balance >= 0 {
		return &InvalidRecordError{Field: "negativeSince", Reason: "set while balance is non-negative"}
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias stored state.
func (a *Account) Clone() *Account {
	c := *a
	if a.NegativeSince != nil {
		ns := *a.NegativeSince
		c.NegativeSince = &ns
	}
	return &c
}

// AccountMutation is the part of an account a ledger operation may change.
type AccountMutation struct {
	Balance       int64
	Status        AccountStatus
	NegativeSince *time.Time
}

// Apply returns a copy of the account with the mutation applied and the version bumped.
func (m AccountMutation) Apply(a *Account) *Account {
	next := a.Clone()
	next.Balance = m.Balance
	next.Status = m.Status
	next.NegativeSince = nil
	if m.NegativeSince != nil {
		ns := *m.NegativeSince
		next.NegativeSince = &ns
	}
	next.Version = a.Version + 1
	return next
}

// AccountView is returned from deposit and withdraw
type AccountView struct {
	UID           string        `json:"uid"`
	Balance       int64         `json:"balance"`
	Status        AccountStatus `json:"status"`
	NegativeSince *time.Time    `json:"negativeSince"`
}

// BalanceView is returned from a balance enquiry
type BalanceView struct {
	UID           string        `json:"uid"`
	Email         string        `json:"email"`
	Balance       int64         `json:"balance"`
	Status        AccountStatus `json:"status"`
	NegativeSince *time.Time    `json:"negativeSince"`
}

func (a *Account) View() *AccountView {
	c := a.Clone()
	return &AccountView{
		UID:           c.UID,
		Balance:       c.Balance,
		Status:        c.Status,
		NegativeSince: c.NegativeSince,
	}
}

func (a *Account) BalanceView() *BalanceView {
	c := a.Clone()
	return &BalanceView{
		UID:           c.UID,
		Email:         c.Email,
		Balance:       c.Balance,
		Status:        c.Status,
		NegativeSince: c.NegativeSince,
	}
}

// InvalidRecordError is returned when a record fails a cross-field check.
type InvalidRecordError struct {
	Field  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return "invalid record field '" + e.Field + "': " + e.Reason
}
