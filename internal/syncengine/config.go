package syncengine

import (
	"time"

	"github.com/webitel/im-sync-engine/internal/conflict"
	"github.com/webitel/im-sync-engine/internal/retry"
	"github.com/webitel/im-sync-engine/internal/syncerrors"
)

// Config enumerates every tunable in spec §6.
type Config struct {
	ServerURL         string
	BatchSize         int
	SyncInterval      time.Duration
	MaxAttempts       int
	InitialRetryDelay time.Duration
	BackoffMultiplier float64
	MaxRetryDelay     time.Duration
	RequestTimeout    time.Duration
	MaxConcurrent     int
	ConflictStrategy  conflict.Strategy
	Debug             bool
}

// DefaultConfig mirrors the defaults enumerated in spec §6.
func DefaultConfig() Config {
	return Config{
		BatchSize:         10,
		SyncInterval:      30 * time.Second,
		MaxAttempts:       3,
		InitialRetryDelay: time.Second,
		BackoffMultiplier: 2.0,
		MaxRetryDelay:     15 * time.Second,
		RequestTimeout:    10 * time.Second,
		MaxConcurrent:     3,
		ConflictStrategy:  conflict.StrategyTimestamp,
	}
}

// Validate rejects a Config at Initialize (spec §7: ConfigError).
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return &syncerrors.ConfigError{Field: "batch_size", Reason: "must be positive"}
	}
	if c.MaxAttempts <= 0 {
		return &syncerrors.ConfigError{Field: "max_attempts", Reason: "must be positive"}
	}
	if c.MaxConcurrent <= 0 {
		return &syncerrors.ConfigError{Field: "max_concurrent", Reason: "must be positive"}
	}
	if c.BackoffMultiplier <= 0 {
		return &syncerrors.ConfigError{Field: "backoff_multiplier", Reason: "must be positive"}
	}
	if c.SyncInterval <= 0 {
		return &syncerrors.ConfigError{Field: "sync_interval", Reason: "must be positive"}
	}
	if c.RequestTimeout <= 0 {
		return &syncerrors.ConfigError{Field: "request_timeout", Reason: "must be positive"}
	}
	return nil
}

// retryConfig adapts Config into retry.Config for the Scheduler.
func (c Config) retryConfig() retry.Config {
	return retry.Config{
		InitialDelay: c.InitialRetryDelay,
		Multiplier:   c.BackoffMultiplier,
		MaxDelay:     c.MaxRetryDelay,
		MaxAttempts:  c.MaxAttempts,
	}
}
