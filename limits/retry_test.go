/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCallLimiter_RunWithRetry(t *testing.T) {
	noop := func(context.Context) error { return nil }

	t.Run("admitted on first attempt", func(t *testing.T) {
		l := MustNew(1, 1)
		calls := 0
		err := l.RunWithRetry(context.Background(), ConstantRetryPolicy{Interval: time.Millisecond, MaxRetries: 3},
			func(context.Context) error {
				calls++
				return nil
			})
		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("denied after all retries", func(t *testing.T) {
		l := MustNew(1, 0)
		w := newBlockingWork()
		var cr callResults
		cr.fire(t, l, 1, w.run)
		require.Eventually(t, func() bool { return w.running.Load() == 1 }, waitTimeout, waitInterval)

		err := l.RunWithRetry(context.Background(), ConstantRetryPolicy{Interval: time.Millisecond, MaxRetries: 2}, noop)
		require.ErrorIs(t, err, ErrAdmissionDenied)
		require.EqualError(t, err, "call admission denied after 3 attempts")

		close(w.proceed)
		cr.wait()
	})

	t.Run("zero max retries means single attempt", func(t *testing.T) {
		l := MustNew(1, 0)
		w := newBlockingWork()
		var cr callResults
		cr.fire(t, l, 1, w.run)
		require.Eventually(t, func() bool { return w.running.Load() == 1 }, waitTimeout, waitInterval)

		policies := []RetryPolicy{
			ConstantRetryPolicy{Interval: time.Millisecond},
			ExponentialRetryPolicy{InitialInterval: time.Millisecond},
		}
		for _, policy := range policies {
			err := l.RunWithRetry(context.Background(), policy, noop)
			require.ErrorIs(t, err, ErrAdmissionDenied)
			require.EqualError(t, err, "call admission denied after 1 attempts")
		}

		close(w.proceed)
		cr.wait()
	})

	t.Run("admitted after concurrent permit is freed", func(t *testing.T) {
		l := MustNew(1, 0)
		w := newBlockingWork()
		var cr callResults
		cr.fire(t, l, 1, w.run)
		require.Eventually(t, func() bool { return w.running.Load() == 1 }, waitTimeout, waitInterval)

		go func() {
			time.Sleep(30 * time.Millisecond)
			close(w.proceed)
		}()
		err := l.RunWithRetry(context.Background(),
			ExponentialRetryPolicy{InitialInterval: 10 * time.Millisecond, MaxInterval: 50 * time.Millisecond, MaxRetries: 20}, noop)
		require.NoError(t, err)
		cr.wait()
	})

	t.Run("work error is not retried", func(t *testing.T) {
		errBad := errors.New("bad")
		l := MustNew(1, 1)
		calls := 0
		err := l.RunWithRetry(context.Background(), ConstantRetryPolicy{Interval: time.Millisecond, MaxRetries: 5},
			func(context.Context) error {
				calls++
				return errBad
			})
		require.ErrorIs(t, err, errBad)
		require.Equal(t, 1, calls)
		require.Equal(t, 1, l.AvailableConcurrentPermit())
	})

	t.Run("context is canceled", func(t *testing.T) {
		l := MustNew(1, 0)
		w := newBlockingWork()
		var cr callResults
		cr.fire(t, l, 1, w.run)
		require.Eventually(t, func() bool { return w.running.Load() == 1 }, waitTimeout, waitInterval)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		err := l.RunWithRetry(ctx, ConstantRetryPolicy{Interval: 10 * time.Millisecond, MaxRetries: -1}, noop)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		close(w.proceed)
		cr.wait()
	})
}
