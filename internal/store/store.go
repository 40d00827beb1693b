package store

import (
	"context"

	"github.com/virtualbank/backend/internal/models"
)

// AccountStore keeps one Account per uid.
type AccountStore interface {
	Get(ctx context.Context, uid string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	// ConditionalUpdate applies mutation only if the stored version still equals
	// expectedVersion. It returns apperrors.ErrVersionConflict otherwise.
	ConditionalUpdate(ctx context.Context, uid string, expectedVersion int64, mutation models.AccountMutation) (*models.Account, error)
}

// TransactionLog is the append-only history of ledger operations.
type TransactionLog interface {
	// Append is idempotent on record.ID.
	Append(ctx context.Context, record models.TransactionRecord) (string, error)
	// ListByIdentity returns records most recent first and never returns nil.
	ListByIdentity(ctx context.Context, uid string) ([]models.TransactionRecord, error)
}
