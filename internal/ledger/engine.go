package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/virtualbank/backend/internal/audit"
	"github.com/virtualbank/backend/internal/config"
	apperrors "github.com/virtualbank/backend/internal/errors"
	"github.com/virtualbank/backend/internal/events"
	"github.com/virtualbank/backend/internal/models"
	"github.com/virtualbank/backend/internal/store"
)

const publishTimeout = 2 * time.Second

// Engine runs ledger operations against an AccountStore and a TransactionLog.
type Engine struct {
	accounts  store.AccountStore
	txLog     store.TransactionLog
	policy    *FreezePolicy
	queue     ReconciliationQueue
	publisher events.Publisher
	audit     *audit.Logger
	cfg       *config.LedgerConfig
	now       func() time.Time
	newID     func() string
}

type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests of the freeze threshold.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithReconciliationQueue(q ReconciliationQueue) Option {
	return func(e *Engine) { e.queue = q }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithAuditLogger(a *audit.Logger) Option {
	return func(e *Engine) { e.audit = a }
}

func NewEngine(accounts store.AccountStore, txLog store.TransactionLog, cfg *config.LedgerConfig, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultLedgerConfig()
	}
	e := &Engine{
		accounts:  accounts,
		txLog:     txLog,
		policy:    NewFreezePolicy(cfg.FreezeAfter),
		queue:     NewMemoryReconciliationQueue(),
		publisher: events.NoopPublisher{},
		audit:     audit.NewAuditLogger(),
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateAccount initializes the ledger record for a freshly created identity.
func (e *Engine) CreateAccount(ctx context.Context, uid, email string) (*models.Account, error) {
	account := &models.Account{
		UID:       uid,
		Email:     email,
		Balance:   0,
		Status:    models.AccountStatusActive,
		CreatedAt: e.now().UTC(),
	}
	if err := e.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account %s: %w", uid, err)
	}
	log.Printf("[LEDGER] Account initialized - uid: %s", uid)
	return account, nil
}

func (e *Engine) Deposit(ctx context.Context, uid string, amount int64) (*models.AccountView, error) {
	return e.apply(ctx, uid, models.TransactionTypeDeposit, amount)
}

func (e *Engine) Withdraw(ctx context.Context, uid string, amount int64) (*models.AccountView, error) {
	return e.apply(ctx, uid, models.TransactionTypeWithdraw, amount)
}

// GetBalance returns the account as last persisted. The freeze policy is not consulted.
func (e *Engine) GetBalance(ctx context.Context, uid string) (*models.BalanceView, error) {
	account, err := e.accounts.Get(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("get balance %s: %w", uid, err)
	}
	return account.BalanceView(), nil
}

func (e *Engine) ListTransactions(ctx context.Context, uid string) ([]models.TransactionRecord, error) {
	records, err := e.txLog.ListByIdentity(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list transactions %s: %w", uid, err)
	}
	if records == nil {
		records = []models.TransactionRecord{}
	}
	return records, nil
}

func (e *Engine) apply(ctx context.Context, uid string, txType models.TransactionType, amount int64) (*models.AccountView, error) {
	if amount <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}

	var (
		previous *models.Account
		updated  *models.Account
		now      time.Time
	)
	for attempt := 0; ; attempt++ {
		account, err := e.accounts.Get(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", txType, uid, err)
		}

		now = e.now().UTC()
		mutation, err := e.nextState(account, txType, amount, now)
		if err != nil {
			return nil, err
		}

		updated, err = e.accounts.ConditionalUpdate(ctx, uid, account.Version, mutation)
		if err == nil {
			previous = account
			break
		}
		if !errors.Is(err, apperrors.ErrVersionConflict) {
			return nil, fmt.Errorf("%s %s: %w", txType, uid, err)
		}
		if attempt >= e.cfg.MaxConflictRetries {
			log.Printf("[LEDGER] Conflict retries exhausted - uid: %s, type: %s, attempts: %d", uid, txType, attempt+1)
			return nil, fmt.Errorf("%s %s: %w", txType, uid, apperrors.ErrConcurrencyConflict)
		}
		if err := sleepContext(ctx, backoff(attempt, e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay)); err != nil {
			return nil, err
		}
	}

	if previous.Status != models.AccountStatusFrozen && updated.Status == models.AccountStatusFrozen {
		log.Printf("[LEDGER] Account frozen - uid: %s, balance: %d", uid, updated.Balance)
		e.audit.LogFreeze(uid, updated.Balance, updated.NegativeSince)
	}

	record := models.TransactionRecord{
		ID:           e.newID(),
		UID:          uid,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: updated.Balance,
		CreatedAt:    now,
	}
	e.record(ctx, record, updated.Status)

	return updated.View(), nil
}

// nextState computes the mutation for one attempt. Overflowing the balance is
// treated as an invalid amount.
func (e *Engine) nextState(account *models.Account, txType models.TransactionType, amount int64, now time.Time) (models.AccountMutation, error) {
	var newBalance int64
	switch txType {
	case models.TransactionTypeDeposit:
		if account.Balance > math.MaxInt64-amount {
			return models.AccountMutation{}, fmt.Errorf("deposit %s: balance would overflow: %w", account.UID, apperrors.ErrInvalidAmount)
		}
		newBalance = account.Balance + amount
	case models.TransactionTypeWithdraw:
		if account.Balance < math.MinInt64+amount {
			return models.AccountMutation{}, fmt.Errorf("withdraw %s: balance would overflow: %w", account.UID, apperrors.ErrInvalidAmount)
		}
		newBalance = account.Balance - amount
	default:
		return models.AccountMutation{}, fmt.Errorf("unknown transaction type %q", txType)
	}

	negativeSince := account.NegativeSince
	if newBalance >= 0 {
		negativeSince = nil
	} else if negativeSince == nil {
		since := now
		negativeSince = &since
	}

	return models.AccountMutation{
		Balance:       newBalance,
		NegativeSince: negativeSince,
		Status:        e.policy.Decide(account.Status, newBalance, negativeSince, now),
	}, nil
}

// record appends the history entry for a committed balance change. The balance
// is already the source of truth, so a failure here is queued for
// reconciliation instead of being returned.
func (e *Engine) record(ctx context.Context, record models.TransactionRecord, status models.AccountStatus) {
	// the caller going away must not cut the history write short
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 0; attempt <= e.cfg.AppendRetries; attempt++ {
		if attempt > 0 {
			_ = sleepContext(ctx, backoff(attempt-1, e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay))
		}
		if _, err = e.txLog.Append(ctx, record); err == nil {
			break
		}
		log.Printf("[LEDGER] Transaction append failed - id: %s, uid: %s, attempt: %d: %v", record.ID, record.UID, attempt+1, err)
	}

	if err != nil {
		e.audit.LogReconciliation(record, err)
		item := models.PendingTransaction{Record: record, AccountStatus: status}
		if qErr := e.queue.Enqueue(ctx, item); qErr != nil {
			log.Printf("[LEDGER] Failed to queue transaction %s for reconciliation: %v", record.ID, qErr)
			e.audit.LogError(record.ID, record.UID, qErr)
		}
		return
	}

	e.audit.LogOperation(record, status)

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(pubCtx, e.cfg.EventsTopic, events.NewTransactionRecorded(record, status)); err != nil {
		log.Printf("[LEDGER] Failed to publish event for transaction %s: %v", record.ID, err)
	}
}
