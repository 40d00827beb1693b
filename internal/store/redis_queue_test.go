package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/virtualbank/backend/internal/models"
)

func TestRedisReconciliationQueue(t *testing.T) {
	ctx := context.Background()
	item := models.PendingTransaction{
		Record: models.TransactionRecord{
			ID: "tx1", UID: "u1", Type: models.TransactionTypeDeposit,
			Amount: 100, BalanceAfter: 100, CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		AccountStatus: models.AccountStatusActive,
	}
	data, err := json.Marshal(item)
	require.NoError(t, err)

	t.Run("enqueue pushes to the head", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		q := NewRedisReconciliationQueue(client)

		mock.ExpectLPush(ReconciliationKey, data).SetVal(1)
		assert.NoError(t, q.Enqueue(ctx, item))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("dequeue moves the tail into the processing list", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		q := NewRedisReconciliationQueue(client)

		mock.ExpectRPopLPush(ReconciliationKey, ReconciliationProcessingKey).SetVal(string(data))
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, item, *got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ack removes the item from the processing list", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		q := NewRedisReconciliationQueue(client)

		mock.ExpectLRem(ReconciliationProcessingKey, 1, data).SetVal(1)
		assert.NoError(t, q.Ack(ctx, item))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty queue", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		q := NewRedisReconciliationQueue(client)

		mock.ExpectRPopLPush(ReconciliationKey, ReconciliationProcessingKey).RedisNil()
		got, err := q.Dequeue(ctx)
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("undecodable payload is parked on the dead list", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		q := NewRedisReconciliationQueue(client)

		garbage := []byte("{not json")
		mock.ExpectRPopLPush(ReconciliationKey, ReconciliationProcessingKey).SetVal(string(garbage))
		mock.ExpectRPush(ReconciliationDeadKey, garbage).SetVal(1)
		mock.ExpectLRem(ReconciliationProcessingKey, 1, garbage).SetVal(1)

		got, err := q.Dequeue(ctx)
		assert.Error(t, err)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("in-flight items are recovered", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		q := NewRedisReconciliationQueue(client)

		mock.ExpectRPopLPush(ReconciliationProcessingKey, ReconciliationKey).SetVal(string(data))
		mock.ExpectRPopLPush(ReconciliationProcessingKey, ReconciliationKey).SetVal(string(data))
		mock.ExpectRPopLPush(ReconciliationProcessingKey, ReconciliationKey).RedisNil()

		n, err := q.RecoverInFlight(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("recovery stops on redis errors", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		q := NewRedisReconciliationQueue(client)

		mock.ExpectRPopLPush(ReconciliationProcessingKey, ReconciliationKey).SetErr(errors.New("connection reset"))

		n, err := q.RecoverInFlight(ctx)
		assert.Error(t, err)
		assert.Equal(t, 0, n)
	})
}
