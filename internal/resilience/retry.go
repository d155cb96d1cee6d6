package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RetryConfig controls the retry loop behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (initial + retries).
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// Multiplier is the backoff growth factor per attempt.
	Multiplier float64

	// JitterFraction adds +/- this fraction of randomness to each delay.
	JitterFraction float64

	// ShouldRetry decides whether an error is worth retrying.
	// Defaults to IsTransient when nil.
	ShouldRetry func(error) bool

	// OnRetry is called before each retry sleep, for logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns sensible defaults for feed fetches.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	if c.OnRetry == nil {
		c.OnRetry = func(attempt int, err error, delay time.Duration) {
			zap.L().Warn("retrying after transient error",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
	}
	return c
}

// backoffDelay computes the jittered delay for a given retry index (0-based).
func (c RetryConfig) backoffDelay(retry int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(retry))
	if d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}
	if c.JitterFraction > 0 {
		jitter := d * c.JitterFraction
		d = d - jitter + rand.Float64()*2*jitter
	}
	return time.Duration(d)
}

// Do runs fn with retries per cfg. It stops on success, on a non-retryable
// error, on context cancellation, or once MaxAttempts is exhausted.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, eris.Wrap(err, "resilience: context done before attempt")
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts || !cfg.ShouldRetry(err) {
			break
		}

		delay := cfg.backoffDelay(attempt - 1)
		cfg.OnRetry(attempt, err, delay)

		select {
		case <-ctx.Done():
			return zero, eris.Wrap(ctx.Err(), "resilience: context done during backoff")
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}
