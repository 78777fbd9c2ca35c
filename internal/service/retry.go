package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/brightpath/safety-engine/internal/config"
	"github.com/brightpath/safety-engine/internal/database"
	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/observability"
)

// RetryPolicy bounds how often a storage unit is re-run after a transient
// failure. Only STORAGE_UNAVAILABLE is retried.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func NewRetryPolicy(maxTries uint) RetryPolicy {
	if maxTries == 0 {
		maxTries = 1
	}
	return RetryPolicy{
		MaxTries:        maxTries,
		InitialInterval: config.StorageRetryInitialInterval,
		MaxInterval:     config.StorageRetryMaxInterval,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// retry runs fn until it succeeds, fails permanently or the policy is
// exhausted. fn must be a complete unit: a transaction function is retried as
// a whole, never a step inside it. The returned error is always classified.
func retry[T any](
	ctx context.Context,
	policy RetryPolicy,
	metrics *observability.Metrics,
	operation string,
	fn func() (T, error),
) (T, error) {
	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		if attempt > 1 {
			metrics.ObserveStorageRetry(operation)
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		err = database.ClassifyError(ctx, err)
		if !apperrors.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		log.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Msg("Transient storage failure")
		return v, err
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(policy.MaxTries),
	)
	if err != nil {
		var zero T
		return zero, database.ClassifyError(ctx, err)
	}
	return result, nil
}
