package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jdziat/jobsuite/pkg/core"
)

// RetryConfig controls how status writes are retried. A status write that
// keeps failing ends the suite run, so a few seconds of patience for a full
// disk or a busy database are worth it.
type RetryConfig struct {
	// MaxAttempts counts the first try. Values below 1 mean 1.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// BackoffMultiplier grows the wait after every failed attempt. Values
	// below 1 keep it constant.
	BackoffMultiplier float64

	// JitterFraction randomizes each wait by up to ±fraction of it.
	JitterFraction float64

	// OnRetry, when set, is called before every wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryConfig returns the policy used by suites: five attempts
// spread over roughly 1.5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// wait returns the pause after the given failed attempt (1-based).
func (c RetryConfig) wait(attempt int) time.Duration {
	d := c.InitialBackoff
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if c.MaxBackoff > 0 && d >= c.MaxBackoff {
			d = c.MaxBackoff
			break
		}
	}
	if c.JitterFraction > 0 && d > 0 {
		jitter := time.Duration(float64(d) * c.JitterFraction * (rand.Float64()*2 - 1))
		if d+jitter > 0 {
			d += jitter
		}
	}
	return d
}

// Retry runs op until it succeeds, returns a permanent error (see
// IsRetryableError), or the attempts run out. It returns the last error,
// or ctx.Err() when ctx ends during a wait.
func Retry(ctx context.Context, config RetryConfig, op func() error) error {
	attempts := max(config.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt >= attempts || !IsRetryableError(err) {
			return err
		}

		wait := config.wait(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// IsRetryableError reports whether a store error may go away on its own.
// Disk and database errors are treated as transient; invalid keys, corrupt
// records and context errors are not.
func IsRetryableError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrInvalidNamespace), errors.Is(err, core.ErrNamespaceTooLong),
		errors.Is(err, core.ErrInvalidJobID), errors.Is(err, core.ErrJobIDTooLong):
		return false
	case errors.Is(err, core.ErrCorruptRecord):
		return false
	}
	var cfgErr *core.ConfigurationError
	return !errors.As(err, &cfgErr)
}
