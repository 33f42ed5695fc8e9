package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig controls bounded retry with exponential backoff
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns the retry settings used for roster calls
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// backoffDelay returns the sleep before attempt+1, as
// min(BaseDelay * Multiplier^(attempt-1), MaxDelay). Attempts are 1-based.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}

// RetryWithBackoff runs op up to MaxAttempts times, sleeping an
// exponentially growing delay between attempts. The first success returns
// immediately; the last error is returned once attempts are exhausted.
// Errors are not classified here; every failure is retried uniformly.
// The sleep respects context cancellation.
func RetryWithBackoff[T any](ctx context.Context, cfg RetryConfig, name string, op func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		slog.Warn("Operation failed, will retry",
			"operation", name,
			"attempt", attempt,
			"maxAttempts", cfg.MaxAttempts,
			"error", err)

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s cancelled during retry backoff: %w", name, ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}
