package db

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds WithRetry.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		MaxElapsed:      5 * time.Second,
	}
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. retryable decides which errors warrant another attempt;
// nil means IsTransient. onRetry, when set, is called before each new attempt.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, retryable func(error) bool, onRetry func(error), fn func() (T, error)) (T, error) {
	if retryable == nil {
		retryable = IsTransient
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if policy.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(policy.MaxTries))
	}
	if policy.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(policy.MaxElapsed))
	}
	if onRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, _ time.Duration) {
			onRetry(err)
		}))
	}

	return backoff.Retry(ctx, func() (T, error) {
		out, err := fn()
		if err != nil && !retryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}, opts...)
}
