package models

import (
	"time"
)

// TransactionType is the kind of ledger operation a record describes
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeWithdraw TransactionType = "withdraw"
)

// TransactionRecord is an immutable history entry written once per successful deposit or withdraw
type TransactionRecord struct {
	ID           string          `json:"id" db:"id" validate:"required"`
	UID          string          `json:"uid" db:"uid" validate:"required"`
	Type         TransactionType `json:"type" db:"type" validate:"required,oneof=deposit withdraw"`
	Amount       int64           `json:"amount" db:"amount" validate:"gt=0"`
	BalanceAfter int64           `json:"balanceAfter" db:"balance_after"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at" validate:"required"`
}

func (t *TransactionRecord) Validate() error {
	return validate.Struct(t)
}

// PendingTransaction is a committed record whose history write has not landed
// yet, together with the account status at commit time.
type PendingTransaction struct {
	Record        TransactionRecord `json:"record"`
	AccountStatus AccountStatus     `json:"accountStatus"`
}
