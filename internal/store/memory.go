package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/virtualbank/backend/internal/errors"
	"github.com/virtualbank/backend/internal/models"
)

// MemoryAccountStore is an in-memory AccountStore, safe for concurrent use.
// The map lock only guards membership; each account carries its own mutex so
// updates to different uids never wait on each other.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*memoryAccount
}

type memoryAccount struct {
	mu      sync.Mutex
	account *models.Account
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[string]*memoryAccount),
	}
}

func (m *MemoryAccountStore) lookup(uid string) (*memoryAccount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.accounts[uid]
	return entry, ok
}

func (m *MemoryAccountStore) Get(ctx context.Context, uid string) (*models.Account, error) {
	entry, ok := m.lookup(uid)
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.account.Clone(), nil
}

func (m *MemoryAccountStore) Create(ctx context.Context, account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("create account %s: %w", account.UID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.UID]; exists {
		return apperrors.ErrAccountAlreadyExists
	}
	stored := account.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	m.accounts[account.UID] = &memoryAccount{account: stored}
	return nil
}

func (m *MemoryAccountStore) ConditionalUpdate(ctx context.Context, uid string, expectedVersion int64, mutation models.AccountMutation) (*models.Account, error) {
	entry, ok := m.lookup(uid)
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.account.Version != expectedVersion {
		return nil, apperrors.ErrVersionConflict
	}

	next := mutation.Apply(entry.account)
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("update account %s: %w", uid, err)
	}
	entry.account = next
	return next.Clone(), nil
}

// MemoryTransactionLog is an in-memory TransactionLog, safe for concurrent use.
type MemoryTransactionLog struct {
	mu      sync.RWMutex
	records []models.TransactionRecord
	ids     map[string]struct{}
}

func NewMemoryTransactionLog() *MemoryTransactionLog {
	return &MemoryTransactionLog{
		records: make([]models.TransactionRecord, 0),
		ids:     make(map[string]struct{}),
	}
}

func (m *MemoryTransactionLog) Append(ctx context.Context, record models.TransactionRecord) (string, error) {
	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("append transaction: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ids[record.ID]; exists {
		return record.ID, nil
	}
	m.ids[record.ID] = struct{}{}
	m.records = append(m.records, record)
	return record.ID, nil
}

func (m *MemoryTransactionLog) ListByIdentity(ctx context.Context, uid string) ([]models.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.TransactionRecord, 0)
	// walk backwards so equal timestamps keep reverse insertion order after the stable sort
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].UID == uid {
			result = append(result, m.records[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

var (
	_ AccountStore   = (*MemoryAccountStore)(nil)
	_ TransactionLog = (*MemoryTransactionLog)(nil)
)
