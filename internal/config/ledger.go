package config

import (
	"time"

	"github.com/spf13/viper"
)

// LedgerConfig holds the tunables of the ledger engine and reconciler
type LedgerConfig struct {
	FreezeAfter        time.Duration
	MaxConflictRetries int
	AppendRetries      int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	ReconcileInterval  time.Duration
	ReconcileBatchSize int
	EventsTopic        string
}

func setLedgerDefaults() {
	viper.SetDefault("ledger.freeze_after", 7*24*time.Hour)
	viper.SetDefault("ledger.max_conflict_retries", 5)
	viper.SetDefault("ledger.append_retries", 3)
	viper.SetDefault("ledger.retry_base_delay", 5*time.Millisecond)
	viper.SetDefault("ledger.retry_max_delay", 200*time.Millisecond)
	viper.SetDefault("ledger.reconcile_interval", 30*time.Second)
	viper.SetDefault("ledger.reconcile_batch_size", 100)
	viper.SetDefault("kafka.topic", "ledger.transactions")
}

// LoadLedgerConfig reads ledger settings from viper, falling back to defaults
func LoadLedgerConfig() *LedgerConfig {
	setLedgerDefaults()

	cfg := &LedgerConfig{
		FreezeAfter:        viper.GetDuration("ledger.freeze_after"),
		MaxConflictRetries: viper.GetInt("ledger.max_conflict_retries"),
		AppendRetries:      viper.GetInt("ledger.append_retries"),
		RetryBaseDelay:     viper.GetDuration("ledger.retry_base_delay"),
		RetryMaxDelay:      viper.GetDuration("ledger.retry_max_delay"),
		ReconcileInterval:  viper.GetDuration("ledger.reconcile_interval"),
		ReconcileBatchSize: viper.GetInt("ledger.reconcile_batch_size"),
		EventsTopic:        viper.GetString("kafka.topic"),
	}
	cfg.normalize()
	return cfg
}

// DefaultLedgerConfig returns the built-in defaults without consulting viper
func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		FreezeAfter:        7 * 24 * time.Hour,
		MaxConflictRetries: 5,
		AppendRetries:      3,
		RetryBaseDelay:     5 * time.Millisecond,
		RetryMaxDelay:      200 * time.Millisecond,
		ReconcileInterval:  30 * time.Second,
		ReconcileBatchSize: 100,
		EventsTopic:        "ledger.transactions",
	}
}

func (c *LedgerConfig) normalize() {
	def := DefaultLedgerConfig()
	if c.FreezeAfter <= 0 {
		c.FreezeAfter = def.FreezeAfter
	}
	if c.MaxConflictRetries < 0 {
		c.MaxConflictRetries = 0
	}
	if c.AppendRetries < 0 {
		c.AppendRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = c.RetryBaseDelay
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = def.ReconcileInterval
	}
	if c.ReconcileBatchSize <= 0 {
		c.ReconcileBatchSize = def.ReconcileBatchSize
	}
	if c.EventsTopic == "" {
		c.EventsTopic = def.EventsTopic
	}
}
