// Package retry provides retry logic with exponential backoff for storage
// operations.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/objectfs/webvfs/pkg/errors"
)

// Config defines retry behavior configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first one
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" split_words:"true"`

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay" split_words:"true"`

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay" split_words:"true"`

	// Multiplier is the factor by which delay increases after each retry
	Multiplier float64 `yaml:"multiplier" json:"multiplier" split_words:"true"`

	// Jitter adds ±20% randomness to each delay
	Jitter bool `yaml:"jitter" json:"jitter" split_words:"true"`

	// RetryableErrors lists the error codes that trigger a retry
	RetryableErrors []errors.ErrorCode `yaml:"retryable_errors" json:"retryable_errors" ignored:"true"`

	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-" ignored:"true"`
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeStorageRead,
			errors.ErrCodeStorageWrite,
		},
	}
}

// Retryer handles retry logic with exponential backoff
type Retryer struct {
	config Config
}

// New creates a new Retryer with the given configuration
func New(config Config) *Retryer {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = defaults.Multiplier
	}
	if config.RetryableErrors == nil {
		config.RetryableErrors = defaults.RetryableErrors
	}

	return &Retryer{config: config}
}

// Do executes the given function with retry logic
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(context.Context) error {
		return fn()
	})
}

// DoWithContext executes fn until it succeeds, returns a non-retryable error,
// or the attempts run out. Exhaustion is reported as RETRY_EXHAUSTED wrapping
// the last error.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCodeFSError, "retry")
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.retryable(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrCodeFSError, "retry")
		case <-timer.C:
		}
	}

	return errors.Errorf(errors.ErrCodeRetryExhausted,
		"max retry attempts (%d) exceeded", r.config.MaxAttempts).WithCause(lastErr)
}

// retryable reports whether err carries one of the configured codes.
func (r *Retryer) retryable(err error) bool {
	code := errors.CodeOf(err)
	if code == "" {
		return false
	}
	for _, c := range r.config.RetryableErrors {
		if c == code {
			return true
		}
	}
	return false
}

// calculateDelay calculates the delay for the next retry attempt
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	// Exponential backoff: initialDelay * multiplier^(attempt-1)
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		jitter := delay * 0.2 * (rand.Float64()*2 - 1)
		delay += jitter
	}

	return time.Duration(delay)
}
