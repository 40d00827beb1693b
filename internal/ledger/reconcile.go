package ledger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/virtualbank/backend/internal/audit"
	"github.com/virtualbank/backend/internal/events"
	"github.com/virtualbank/backend/internal/models"
	"github.com/virtualbank/backend/internal/store"
)

// ReconciliationQueue holds history entries whose append failed after the
// balance change was committed.
type ReconciliationQueue interface {
	Enqueue(ctx context.Context, item models.PendingTransaction) error
	// Dequeue returns nil, nil when the queue is empty.
	Dequeue(ctx context.Context) (*models.PendingTransaction, error)
	// Ack marks a dequeued item as handled.
	Ack(ctx context.Context, item models.PendingTransaction) error
}

// InFlightRecoverer is implemented by queues that keep dequeued items until
// they are acknowledged.
type InFlightRecoverer interface {
	RecoverInFlight(ctx context.Context) (int, error)
}

// MemoryReconciliationQueue is a process-local FIFO used when Redis is unavailable.
type MemoryReconciliationQueue struct {
	mu    sync.Mutex
	items []models.PendingTransaction
}

func NewMemoryReconciliationQueue() *MemoryReconciliationQueue {
	return &MemoryReconciliationQueue{}
}

func (q *MemoryReconciliationQueue) Enqueue(ctx context.Context, item models.PendingTransaction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *MemoryReconciliationQueue) Dequeue(ctx context.Context) (*models.PendingTransaction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return &item, nil
}

// Ack is a no-op; Dequeue already removed the item.
func (q *MemoryReconciliationQueue) Ack(ctx context.Context, item models.PendingTransaction) error {
	return nil
}

func (q *MemoryReconciliationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Reconciler replays queued history entries into the TransactionLog and
// publishes the events the engine could not.
type Reconciler struct {
	queue     ReconciliationQueue
	txLog     store.TransactionLog
	audit     *audit.Logger
	publisher events.Publisher
	topic     string
	interval  time.Duration
	batchSize int
}

type ReconcilerOption func(*Reconciler)

// WithEventPublisher publishes a TransactionRecorded event for every replayed record.
func WithEventPublisher(p events.Publisher, topic string) ReconcilerOption {
	return func(r *Reconciler) {
		r.publisher = p
		r.topic = topic
	}
}

func NewReconciler(queue ReconciliationQueue, txLog store.TransactionLog, interval time.Duration, batchSize int, opts ...ReconcilerOption) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	r := &Reconciler{
		queue:     queue,
		txLog:     txLog,
		audit:     audit.NewAuditLogger(),
		publisher: events.NoopPublisher{},
		interval:  interval,
		batchSize: batchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce drains up to one batch. A record that fails again is put back and
// the pass stops so a broken store is not hammered.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	replayed := 0
	for replayed < r.batchSize {
		item, err := r.queue.Dequeue(ctx)
		if err != nil {
			return replayed, fmt.Errorf("dequeue reconciliation item: %w", err)
		}
		if item == nil {
			return replayed, nil
		}
		record := item.Record

		if _, err := r.txLog.Append(ctx, record); err != nil {
			if qErr := r.queue.Enqueue(ctx, *item); qErr != nil {
				// left unacknowledged so RecoverInFlight can return it
				r.audit.LogError(record.ID, record.UID, qErr)
			} else {
				r.ack(ctx, *item)
			}
			return replayed, fmt.Errorf("replay transaction %s: %w", record.ID, err)
		}
		r.ack(ctx, *item)
		r.audit.LogReconciled(record)
		r.publish(ctx, *item)
		replayed++
	}
	return replayed, nil
}

func (r *Reconciler) ack(ctx context.Context, item models.PendingTransaction) {
	if err := r.queue.Ack(ctx, item); err != nil {
		log.Printf("[RECONCILE] Failed to acknowledge transaction %s: %v", item.Record.ID, err)
	}
}

// RecoverInFlight returns unacknowledged items to the queue when the queue supports it.
func (r *Reconciler) RecoverInFlight(ctx context.Context) {
	recoverer, ok := r.queue.(InFlightRecoverer)
	if !ok {
		return
	}
	n, err := recoverer.RecoverInFlight(ctx)
	if err != nil {
		log.Printf("[RECONCILE] In-flight recovery failed after %d items: %v", n, err)
		return
	}
	if n > 0 {
		log.Printf("[RECONCILE] Recovered %d in-flight items", n)
	}
}

func (r *Reconciler) publish(ctx context.Context, item models.PendingTransaction) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	event := events.NewTransactionRecorded(item.Record, item.AccountStatus)
	if err := r.publisher.Publish(pubCtx, r.topic, event); err != nil {
		log.Printf("[RECONCILE] Failed to publish event for transaction %s: %v", item.Record.ID, err)
	}
}

// Start runs RunOnce every interval until ctx is done.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("[RECONCILE] Reconciler started, interval: %s", r.interval)
	r.RecoverInFlight(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[RECONCILE] Reconciler stopped")
			return
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			if err != nil {
				log.Printf("[RECONCILE] Pass failed after %d replays: %v", n, err)
			} else if n > 0 {
				log.Printf("[RECONCILE] Replayed %d transactions", n)
			}
		}
	}
}
