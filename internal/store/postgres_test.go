package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/virtualbank/backend/internal/errors"
	"github.com/virtualbank/backend/internal/models"
)

var accountRowColumns = []string{"uid", "email", "balance", "status", "negative_since", "created_at", "version"}

func TestPostgresAccountStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresAccountStore(db)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("existing account", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT uid, email, balance, status, negative_since, created_at, version FROM accounts WHERE uid = $1")).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows(accountRowColumns).
				AddRow("u1", "u1@example.com", 500, "active", nil, created, 3))

		account, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), account.Balance)
		assert.Equal(t, int64(3), account.Version)
		assert.Nil(t, account.NegativeSince)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative account carries negativeSince", func(t *testing.T) {
		since := created.Add(48 * time.Hour)
		mock.ExpectQuery("SELECT uid, email, balance").
			WithArgs("u2").
			WillReturnRows(sqlmock.NewRows(accountRowColumns).
				AddRow("u2", "u2@example.com", -50, "active", since, created, 2))

		account, err := s.Get(ctx, "u2")
		require.NoError(t, err)
		require.NotNil(t, account.NegativeSince)
		assert.True(t, account.NegativeSince.Equal(since))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT uid, email, balance").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
	})

	t.Run("storage failure", func(t *testing.T) {
		mock.ExpectQuery("SELECT uid, email, balance").
			WithArgs("u1").
			WillReturnError(errors.New("connection reset"))

		_, err := s.Get(ctx, "u1")
		assert.True(t, apperrors.IsPersistence(err))
	})
}

func TestPostgresAccountStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresAccountStore(db)
	ctx := context.Background()

	t.Run("successful create", func(t *testing.T) {
		account := newTestAccount("u1")
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs("u1", "u1@example.com", int64(0), "active", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Create(ctx, account))
		assert.Equal(t, int64(1), account.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate uid", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO accounts").
			WillReturnError(&pq.Error{Code: "23505"})

		err := s.Create(ctx, newTestAccount("u1"))
		assert.ErrorIs(t, err, apperrors.ErrAccountAlreadyExists)
	})
}

func TestPostgresAccountStore_ConditionalUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresAccountStore(db)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updateSQL := regexp.QuoteMeta("UPDATE accounts SET balance = $1, status = $2, negative_since = $3, version = version + 1 WHERE uid = $4 AND version = $5")

	t.Run("successful update", func(t *testing.T) {
		mock.ExpectQuery(updateSQL).
			WithArgs(int64(100), "active", sqlmock.AnyArg(), "u1", int64(1)).
			WillReturnRows(sqlmock.NewRows(accountRowColumns).
				AddRow("u1", "u1@example.com", 100, "active", nil, created, 2))

		account, err := s.ConditionalUpdate(ctx, "u1", 1, models.AccountMutation{Balance: 100, Status: models.AccountStatusActive})
		require.NoError(t, err)
		assert.Equal(t, int64(2), account.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("optimistic lock failure", func(t *testing.T) {
		mock.ExpectQuery(updateSQL).
			WithArgs(int64(100), "active", sqlmock.AnyArg(), "u1", int64(1)).
			WillReturnRows(sqlmock.NewRows(accountRowColumns))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM accounts WHERE uid = $1)")).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := s.ConditionalUpdate(ctx, "u1", 1, models.AccountMutation{Balance: 100, Status: models.AccountStatusActive})
		assert.ErrorIs(t, err, apperrors.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account vanished", func(t *testing.T) {
		mock.ExpectQuery(updateSQL).
			WillReturnRows(sqlmock.NewRows(accountRowColumns))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("gone").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := s.ConditionalUpdate(ctx, "gone", 1, models.AccountMutation{Balance: 1, Status: models.AccountStatusActive})
		assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
	})

	t.Run("inconsistent mutation never reaches the database", func(t *testing.T) {
		now := time.Now()
		_, err := s.ConditionalUpdate(ctx, "u1", 1, models.AccountMutation{Balance: 10, Status: models.AccountStatusActive, NegativeSince: &now})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresTransactionLog(db)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	t.Run("append", func(t *testing.T) {
		rec := models.TransactionRecord{ID: "tx1", UID: "u1", Type: models.TransactionTypeDeposit, Amount: 100, BalanceAfter: 100, CreatedAt: at}
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions (id, uid, type, amount, balance_after, created_at)")).
			WithArgs("tx1", "u1", "deposit", int64(100), int64(100), at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := l.Append(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, "tx1", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("append storage failure", func(t *testing.T) {
		rec := models.TransactionRecord{ID: "tx2", UID: "u1", Type: models.TransactionTypeWithdraw, Amount: 5, BalanceAfter: 95, CreatedAt: at}
		mock.ExpectExec("INSERT INTO transactions").
			WillReturnError(errors.New("disk full"))

		_, err := l.Append(ctx, rec)
		assert.True(t, apperrors.IsPersistence(err))
	})

	t.Run("list most recent first", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, seq DESC")).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "type", "amount", "balance_after", "created_at"}).
				AddRow("tx2", "u1", "withdraw", 5, 95, at.Add(time.Minute)).
				AddRow("tx1", "u1", "deposit", 100, 100, at))

		records, err := l.ListByIdentity(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "tx2", records[0].ID)
		assert.Equal(t, models.TransactionTypeWithdraw, records[0].Type)
	})

	t.Run("empty history", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, uid, type").
			WithArgs("nobody").
			WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "type", "amount", "balance_after", "created_at"}))

		records, err := l.ListByIdentity(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})
}
