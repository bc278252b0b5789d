package provenanceerr

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig bounds the exponential backoff applied to Kind==KindTransient
// failures. Everything else bubbles up on the first attempt.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches spec.md's "retried with exponential backoff up
// to N (default 3)".
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   20 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// Retry runs fn, retrying only KindTransient failures with jittered
// exponential backoff, up to cfg.MaxAttempts. Non-transient errors and
// context cancellation short-circuit immediately.
func Retry(ctx context.Context, cfg RetryConfig, op string, fn func() error) error {
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if KindOf(err) != KindTransient {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay/2+1)))
		select {
		case <-ctx.Done():
			return New(KindCancelled, op, ctx.Err())
		case <-time.After(jittered):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return New(KindDeadlineExceeded, op, ctx.Err())
	}
	return New(KindTransient, op, lastErr)
}
