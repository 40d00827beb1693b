package events

import (
	"context"
	"time"

	"github.com/virtualbank/backend/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// TransactionRecorded is emitted after a history entry is durably written.
type TransactionRecorded struct {
	TransactionID string                 `json:"transactionId"`
	UID           string                 `json:"uid"`
	Type          models.TransactionType `json:"type"`
	Amount        int64                  `json:"amount"`
	BalanceAfter  int64                  `json:"balanceAfter"`
	AccountStatus models.AccountStatus   `json:"accountStatus"`
	CreatedAt     time.Time              `json:"createdAt"`
}

func NewTransactionRecorded(record models.TransactionRecord, status models.AccountStatus) TransactionRecorded {
	return TransactionRecorded{
		TransactionID: record.ID,
		UID:           record.UID,
		Type:          record.Type,
		Amount:        record.Amount,
		BalanceAfter:  record.BalanceAfter,
		AccountStatus: status,
		CreatedAt:     record.CreatedAt,
	}
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}
