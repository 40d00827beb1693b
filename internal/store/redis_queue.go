package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/virtualbank/backend/internal/models"
)

const (
	// ReconciliationKey is the Redis list holding history entries awaiting replay.
	ReconciliationKey = "ledger:reconciliation"
	// ReconciliationProcessingKey holds items handed to a reconciler but not yet acknowledged.
	ReconciliationProcessingKey = "ledger:reconciliation:processing"
	// ReconciliationDeadKey receives payloads that cannot be decoded.
	ReconciliationDeadKey = "ledger:reconciliation:dead"
)

// RedisReconciliationQueue is a FIFO of pending transactions on a Redis list.
// Items are LPUSHed and taken from the tail with RPOPLPUSH into a processing
// list, so an item survives a crash until it is acknowledged.
type RedisReconciliationQueue struct {
	redis         *redis.Client
	key           string
	processingKey string
	deadKey       string
}

func NewRedisReconciliationQueue(client *redis.Client) *RedisReconciliationQueue {
	return &RedisReconciliationQueue{
		redis:         client,
		key:           ReconciliationKey,
		processingKey: ReconciliationProcessingKey,
		deadKey:       ReconciliationDeadKey,
	}
}

func (q *RedisReconciliationQueue) Enqueue(ctx context.Context, item models.PendingTransaction) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.redis.LPush(ctx, q.key, data).Err()
}

// Dequeue moves the oldest item to the processing list and returns it. An
// undecodable payload is parked on the dead list and reported as an error.
func (q *RedisReconciliationQueue) Dequeue(ctx context.Context) (*models.PendingTransaction, error) {
	data, err := q.redis.RPopLPush(ctx, q.key, q.processingKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var item models.PendingTransaction
	if err := json.Unmarshal(data, &item); err != nil {
		if dErr := q.bury(ctx, data); dErr != nil {
			log.Printf("[RECONCILE] Failed to park undecodable item: %v", dErr)
		}
		return nil, fmt.Errorf("decode reconciliation item: %w", err)
	}
	return &item, nil
}

// Ack removes a handled item from the processing list.
func (q *RedisReconciliationQueue) Ack(ctx context.Context, item models.PendingTransaction) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.redis.LRem(ctx, q.processingKey, 1, data).Err()
}

// RecoverInFlight returns items left in the processing list by a reconciler
// that stopped before acknowledging them.
func (q *RedisReconciliationQueue) RecoverInFlight(ctx context.Context) (int, error) {
	recovered := 0
	for {
		err := q.redis.RPopLPush(ctx, q.processingKey, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return recovered, nil
		}
		if err != nil {
			return recovered, err
		}
		recovered++
	}
}

func (q *RedisReconciliationQueue) bury(ctx context.Context, data []byte) error {
	if err := q.redis.RPush(ctx, q.deadKey, data).Err(); err != nil {
		return err
	}
	return q.redis.LRem(ctx, q.processingKey, 1, data).Err()
}
