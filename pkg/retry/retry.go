// Package retry runs an operation with exponential backoff until it succeeds, the attempt
// budget is spent, the error is judged not worth retrying, or the context is cancelled.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // Total attempts including the first one (<=0 means one)
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound for any delay
	Multiplier   float64       // Backoff multiplier
	AddJitter    bool          // Add up to 25% random extra delay

	// Retryable decides whether an error is worth another attempt.
	// Nil retries everything not marked NonRetryable.
	Retryable func(error) bool

	// OnRetry is called before sleeping, with the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns defaults suited to publishing on a healthy broker
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Quick returns a config for fast retries during startup
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

func (c Config) normalized() (Config, error) {
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.Multiplier < 0 {
		return c, errors.New("retry: delays and multiplier cannot be negative")
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	if c.MaxDelay < c.InitialDelay {
		return c, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return c, nil
}

// Delay returns the backoff before attempt+1, without jitter.
func (c Config) Delay(attempt int) time.Duration {
	cfg, err := c.normalized()
	if err != nil {
		return 0
	}
	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		next := float64(delay) * cfg.Multiplier
		if next > float64(cfg.MaxDelay) {
			return cfg.MaxDelay
		}
		delay = time.Duration(next)
	}
	return delay
}

// Do executes fn with exponential backoff retry
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalized()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if IsNonRetryable(lastErr) || (cfg.Retryable != nil && !cfg.Retryable(lastErr)) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Delay(attempt)
		if cfg.AddJitter && delay >= 4 {
			randMu.Lock()
			delay += time.Duration(randSource.Int63n(int64(delay / 4)))
			randMu.Unlock()
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
