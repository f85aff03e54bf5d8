package federation

import (
	"context"
	"time"

	apperrors "github.com/sentinela-br/sentinela/internal/errors"
	"github.com/sentinela-br/sentinela/internal/models"
)

// RetryConfig bounds the retry loop for transient adapter failures
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches the documented federation defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// callWithRetry invokes fn up to cfg.MaxAttempts times with exponential
// backoff. Only transient errors are retried; validation errors return
// immediately because retrying a rejected request can never succeed.
func callWithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) ([]models.Record, error)) (records []models.Record, attempts int, err error) {
	delay := cfg.BaseDelay
	for attempts = 1; attempts <= cfg.MaxAttempts; attempts++ {
		records, err = fn(ctx)
		if err == nil {
			return records, attempts, nil
		}
		if !apperrors.IsTransient(err) {
			return nil, attempts, err
		}
		if attempts == cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempts, apperrors.TransientError(ctx.Err(), "retry interrupted")
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return nil, cfg.MaxAttempts, err
}
