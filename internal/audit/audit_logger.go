package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/virtualbank/backend/internal/models"
)

const (
	EventLedgerOperation = "LEDGER_OPERATION"
	EventAccountFrozen   = "ACCOUNT_FROZEN"
	EventReconciliation  = "RECONCILIATION"
	EventReconciled      = "RECONCILED"
	EventError           = "ERROR"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	UID           string    `json:"uid"`
	Amount        int64     `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

type Logger struct {
	out *log.Logger
}

func NewAuditLogger() *Logger {
	return &Logger{out: log.Default()}
}

// NewAuditLoggerWithOutput writes events to out instead of the standard logger.
func NewAuditLoggerWithOutput(out *log.Logger) *Logger {
	return &Logger{out: out}
}

func (a *Logger) LogOperation(record models.TransactionRecord, status models.AccountStatus) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     EventLedgerOperation,
		TransactionID: record.ID,
		UID:           record.UID,
		Amount:        record.Amount,
		Status:        "SUCCESS",
		Details: map[string]any{
			"type":           record.Type,
			"balance_after":  record.BalanceAfter,
			"account_status": status,
		},
	})
}

func (a *Logger) LogFreeze(uid string, balance int64, negativeSince *time.Time) {
	details := map[string]any{"balance": balance}
	if negativeSince != nil {
		details["negative_since"] = negativeSince.UTC()
	}
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: EventAccountFrozen,
		UID:       uid,
		Status:    string(models.AccountStatusFrozen),
		Details:   details,
	})
}

// LogReconciliation records a committed balance change whose history entry could not be written.
func (a *Logger) LogReconciliation(record models.TransactionRecord, err error) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     EventReconciliation,
		TransactionID: record.ID,
		UID:           record.UID,
		Amount:        record.Amount,
		Status:        "PENDING",
		Details: map[string]any{
			"type":          record.Type,
			"balance_after": record.BalanceAfter,
			"created_at":    record.CreatedAt,
			"error":         err.Error(),
		},
	})
}

func (a *Logger) LogReconciled(record models.TransactionRecord) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     EventReconciled,
		TransactionID: record.ID,
		UID:           record.UID,
		Amount:        record.Amount,
		Status:        "SUCCESS",
	})
}

func (a *Logger) LogError(transactionID, uid string, err error) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     EventError,
		TransactionID: transactionID,
		UID:           uid,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	a.out.Printf("AUDIT: %s", string(data))
}
