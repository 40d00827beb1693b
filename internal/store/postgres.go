package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	apperrors "github.com/virtualbank/backend/internal/errors"
	"github.com/virtualbank/backend/internal/models"
)

const uniqueViolation = "23505"

const accountColumns = "uid, email, balance, status, negative_since, created_at, version"

// PostgresAccountStore keeps accounts in the accounts table
type PostgresAccountStore struct {
	db *sql.DB
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var status string
	var negativeSince sql.NullTime
	if err := row.Scan(&account.UID, &account.Email, &account.Balance, &status,
		&negativeSince, &account.CreatedAt, &account.Version); err != nil {
		return nil, err
	}
	account.Status = models.AccountStatus(status)
	if negativeSince.Valid {
		ns := negativeSince.Time.UTC()
		account.NegativeSince = &ns
	}
	account.CreatedAt = account.CreatedAt.UTC()

	if err := account.Validate(); err != nil {
		return nil, fmt.Errorf("account %s failed validation: %w", account.UID, err)
	}
	return &account, nil
}

func (s *PostgresAccountStore) Get(ctx context.Context, uid string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE uid = $1`, uid)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get account", err)
	}
	return account, nil
}

func (s *PostgresAccountStore) Create(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("create account %s: %w", account.UID, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (uid, email, balance, status, negative_since, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)`,
		account.UID, account.Email, account.Balance, string(account.Status),
		nullTime(account.NegativeSince), account.CreatedAt.UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperrors.ErrAccountAlreadyExists
		}
		return apperrors.NewPersistenceError("create account", err)
	}
	account.Version = 1
	return nil
}

func (s *PostgresAccountStore) ConditionalUpdate(ctx context.Context, uid string, expectedVersion int64, mutation models.AccountMutation) (*models.Account, error) {
	if err := validateMutation(mutation); err != nil {
		return nil, fmt.Errorf("update account %s: %w", uid, err)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = $1, status = $2, negative_since = $3, version = version + 1
		WHERE uid = $4 AND version = $5
		RETURNING `+accountColumns,
		mutation.Balance, string(mutation.Status), nullTime(mutation.NegativeSince), uid, expectedVersion)

	account, err := scanAccount(row)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewPersistenceError("update account", err)
	}

	// No row matched: either the account is gone or its version moved on.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE uid = $1)`, uid).Scan(&exists); err != nil {
		return nil, apperrors.NewPersistenceError("update account", err)
	}
	if !exists {
		return nil, apperrors.ErrAccountNotFound
	}
	return nil, apperrors.ErrVersionConflict
}

func validateMutation(m models.AccountMutation) error {
	if m.Status != models.AccountStatusActive && m.Status != models.AccountStatusFrozen {
		return &models.InvalidRecordError{Field: "status", Reason: fmt.Sprintf("unknown status %q", m.Status)}
	}
	if m.NegativeSince != nil && m.Balance >= 0 {
		return &models.InvalidRecordError{Field: "negativeSince", Reason: "set while balance is non-negative"}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// PostgresTransactionLog keeps records in the transactions table
type PostgresTransactionLog struct {
	db *sql.DB
}

func NewPostgresTransactionLog(db *sql.DB) *PostgresTransactionLog {
	return &PostgresTransactionLog{db: db}
}

func (l *PostgresTransactionLog) Append(ctx context.Context, record models.TransactionRecord) (string, error) {
	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("append transaction: %w", err)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO transactions (id, uid, type, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		record.ID, record.UID, string(record.Type), record.Amount, record.BalanceAfter, record.CreatedAt.UTC())
	if err != nil {
		return "", apperrors.NewPersistenceError("append transaction", err)
	}
	return record.ID, nil
}

func (l *PostgresTransactionLog) ListByIdentity(ctx context.Context, uid string) ([]models.TransactionRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, uid, type, amount, balance_after, created_at
		FROM transactions
		WHERE uid = $1
		ORDER BY created_at DESC, seq DESC`, uid)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list transactions", err)
	}
	defer rows.Close()

	records := []models.TransactionRecord{}
	for rows.Next() {
		var record models.TransactionRecord
		var txType string
		if err := rows.Scan(&record.ID, &record.UID, &txType, &record.Amount, &record.BalanceAfter, &record.CreatedAt); err != nil {
			return nil, apperrors.NewPersistenceError("list transactions", err)
		}
		record.Type = models.TransactionType(txType)
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("list transactions", err)
	}
	return records, nil
}

var (
	_ AccountStore   = (*PostgresAccountStore)(nil)
	_ TransactionLog = (*PostgresTransactionLog)(nil)
)
