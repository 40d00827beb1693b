package ledger

import (
	"time"

	"github.com/virtualbank/backend/internal/models"
)

// DefaultFreezeAfter is how long a balance may stay negative before the account is frozen.
const DefaultFreezeAfter = 7 * 24 * time.Hour

// FreezePolicy decides whether sustained negative balance freezes an account.
type FreezePolicy struct {
	threshold time.Duration
}

func NewFreezePolicy(threshold time.Duration) *FreezePolicy {
	if threshold <= 0 {
		threshold = DefaultFreezeAfter
	}
	return &FreezePolicy{threshold: threshold}
}

func (p *FreezePolicy) Threshold() time.Duration {
	return p.threshold
}

// Decide returns the status an account should have after an operation that
// leaves it at balance. Frozen is terminal. now must be taken once by the
// caller and reused for everything else the same decision touches.
func (p *FreezePolicy) Decide(status models.AccountStatus, balance int64, negativeSince *time.Time, now time.Time) models.AccountStatus {
	if status == models.AccountStatusFrozen {
		return models.AccountStatusFrozen
	}
	if balance < 0 && negativeSince != nil && now.Sub(*negativeSince) >= p.threshold {
		return models.AccountStatusFrozen
	}
	return status
}
