/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zanata/restlimit/log"
)

// ErrAdmissionDenied is returned by RunWithRetry when the call was not admitted after all attempts.
var ErrAdmissionDenied = errors.New("call admission denied")

// RetryPolicy defines a backoff strategy for retrying denied admissions.
type RetryPolicy interface {
	NewBackOff() backoff.BackOff
}

// ConstantRetryPolicy retries up to MaxRetries times with constant delay.
// Zero MaxRetries means a single attempt, a negative one means retrying until the context is done.
type ConstantRetryPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

// NewBackOff implements RetryPolicy.
func (p ConstantRetryPolicy) NewBackOff() backoff.BackOff {
	return limitRetries(backoff.NewConstantBackOff(p.Interval), p.MaxRetries)
}

// ExponentialRetryPolicy retries up to MaxRetries times with exponentially growing delays.
// MaxRetries is interpreted as in ConstantRetryPolicy.
type ExponentialRetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int
}

// NewBackOff implements RetryPolicy.
func (p ExponentialRetryPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	return limitRetries(eb, p.MaxRetries)
}

func limitRetries(bf backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries >= 0 {
		bf = backoff.WithMaxRetries(bf, uint64(maxRetries))
	}
	bf.Reset()
	return bf
}

// RunWithRetry runs the work through the limiter, retrying according to the policy while the call is denied.
// Only denied admissions are retried, an error returned by the work is returned as is.
// If the call is still denied after all retries, an error wrapping ErrAdmissionDenied is returned.
func (l *CallLimiter) RunWithRetry(ctx context.Context, policy RetryPolicy, work Work) error {
	attempts := 0
	bctx := backoff.WithContext(policy.NewBackOff(), ctx)
	op := func() error {
		attempts++
		admitted, err := l.TryAcquireAndRunContext(bctx.Context(), work)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !admitted {
			return ErrAdmissionDenied
		}
		return nil
	}
	notify := func(_ error, delay time.Duration) {
		l.logger.Debug(fmt.Sprintf("call is denied, will retry in %s", delay), log.Int("attempt", attempts))
	}
	if err := backoff.RetryNotify(op, bctx, notify); err != nil {
		if errors.Is(err, ErrAdmissionDenied) {
			return fmt.Errorf("%w after %d attempts", ErrAdmissionDenied, attempts)
		}
		return err
	}
	return nil
}
