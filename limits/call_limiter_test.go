/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/zanata/restlimit/log"
	"github.com/zanata/restlimit/log/logtest"
)

const (
	waitTimeout  = 5 * time.Second
	waitInterval = 5 * time.Millisecond
)

// blockingWork blocks every call until proceed is closed (or receives a value).
type blockingWork struct {
	started    atomic.Int32
	running    atomic.Int32
	maxRunning atomic.Int32
	proceed    chan struct{}
}

func newBlockingWork() *blockingWork {
	return &blockingWork{proceed: make(chan struct{})}
}

func (w *blockingWork) run() error {
	w.started.Inc()
	cur := w.running.Inc()
	for {
		prevMax := w.maxRunning.Load()
		if cur <= prevMax || w.maxRunning.CompareAndSwap(prevMax, cur) {
			break
		}
	}
	<-w.proceed
	w.running.Dec()
	return nil
}

type callResults struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	results  []bool
	denied   atomic.Int32
	admitted atomic.Int32
}

func (cr *callResults) fire(t *testing.T, l *CallLimiter, n int, work func() error) {
	for i := 0; i < n; i++ {
		cr.wg.Add(1)
		go func() {
			defer cr.wg.Done()
			admitted, err := l.TryAcquireAndRun(work)
			assert.NoError(t, err)
			if admitted {
				cr.admitted.Inc()
			} else {
				cr.denied.Inc()
			}
			cr.mu.Lock()
			cr.results = append(cr.results, admitted)
			cr.mu.Unlock()
		}()
	}
}

func (cr *callResults) wait() []bool {
	cr.wg.Wait()
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return append([]bool{}, cr.results...)
}

func TestNew(t *testing.T) {
	t.Run("negative max concurrent", func(t *testing.T) {
		l, err := New(-1, 0)
		require.ErrorIs(t, err, ErrNegativeLimit)
		require.Nil(t, l)
	})

	t.Run("negative max active", func(t *testing.T) {
		l, err := New(0, -1)
		require.ErrorIs(t, err, ErrNegativeLimit)
		require.Nil(t, l)
	})

	t.Run("must new panics on negative limit", func(t *testing.T) {
		require.Panics(t, func() { MustNew(-1, -1) })
	})

	t.Run("initial state", func(t *testing.T) {
		l := MustNew(4, 2)
		require.Equal(t, 4, l.MaxConcurrent())
		require.Equal(t, 2, l.MaxActive())
		require.Equal(t, 4, l.AvailableConcurrentPermit())
		require.Equal(t, 2, l.AvailableActivePermit())
		require.Equal(t, Stats{MaxConcurrent: 4, MaxActive: 2, AvailableConcurrent: 4, AvailableActive: 2}, l.Stats())
	})
}

func TestCallLimiter_TryAcquireAndRun(t *testing.T) {
	t.Run("only max concurrent calls are admitted", func(t *testing.T) {
		const maxConcurrent = 4
		l := MustNew(maxConcurrent, maxConcurrent)
		w := newBlockingWork()

		var cr callResults
		cr.fire(t, l, maxConcurrent+1, w.run)
		require.Eventually(t, func() bool {
			return w.started.Load() == maxConcurrent && cr.denied.Load() == 1
		}, waitTimeout, waitInterval)

		close(w.proceed)
		results := cr.wait()
		require.Len(t, results, maxConcurrent+1)
		require.Equal(t, maxConcurrent, int(cr.admitted.Load()))
		require.Contains(t, results, false)
		require.Equal(t, maxConcurrent, int(w.started.Load()), "work must not be called for denied call")
		require.Equal(t, maxConcurrent, l.AvailableConcurrentPermit())
		require.Equal(t, maxConcurrent, l.AvailableActivePermit())
	})

	t.Run("calls over max active are blocked, not denied", func(t *testing.T) {
		const maxConcurrent, maxActive = 4, 2
		l := MustNew(maxConcurrent, maxActive)
		w := newBlockingWork()

		var cr callResults
		cr.fire(t, l, maxConcurrent, w.run)
		require.Eventually(t, func() bool {
			return w.running.Load() == maxActive && l.Stats().WaitingActive == maxConcurrent-maxActive
		}, waitTimeout, waitInterval)
		require.Equal(t, 0, int(cr.denied.Load()))
		require.Equal(t, 0, l.AvailableConcurrentPermit())
		require.Equal(t, 0, l.AvailableActivePermit())

		close(w.proceed)
		results := cr.wait()
		require.Equal(t, []bool{true, true, true, true}, results)
		require.Equal(t, maxActive, int(w.maxRunning.Load()))
		require.Equal(t, Stats{
			MaxConcurrent: maxConcurrent, MaxActive: maxActive, AvailableConcurrent: maxConcurrent, AvailableActive: maxActive,
		}, l.Stats())
	})

	t.Run("zero means no limit", func(t *testing.T) {
		const callsNum = 50
		l := MustNew(0, 0)
		w := newBlockingWork()

		var cr callResults
		cr.fire(t, l, callsNum, w.run)
		require.Eventually(t, func() bool {
			return w.running.Load() == callsNum
		}, waitTimeout, waitInterval)
		require.Equal(t, 0, int(cr.denied.Load()))
		require.Equal(t, 0, l.Stats().WaitingActive)

		close(w.proceed)
		cr.wait()
		require.Equal(t, callsNum, int(cr.admitted.Load()))
		require.Equal(t, 0, l.AvailableConcurrentPermit())
		require.Equal(t, 0, l.AvailableActivePermit())
	})

	t.Run("zero means no limit, sequential calls", func(t *testing.T) {
		l := MustNew(0, 0)
		for i := 0; i < 3; i++ {
			admitted, err := l.TryAcquireAndRun(func() error { return nil })
			require.NoError(t, err)
			require.True(t, admitted)
		}
	})

	t.Run("unlimited concurrent with limited active", func(t *testing.T) {
		l := MustNew(0, 1)
		w := newBlockingWork()

		var cr callResults
		cr.fire(t, l, 3, w.run)
		require.Eventually(t, func() bool {
			return w.running.Load() == 1 && l.Stats().WaitingActive == 2
		}, waitTimeout, waitInterval)

		close(w.proceed)
		require.Equal(t, []bool{true, true, true}, cr.wait())
		require.Equal(t, 1, int(w.maxRunning.Load()))
	})

	t.Run("permits are released when work returns error", func(t *testing.T) {
		errBad := errors.New("bad")
		l := MustNew(4, 2)

		admitted, err := l.TryAcquireAndRun(func() error { return errBad })
		require.True(t, admitted)
		require.ErrorIs(t, err, errBad)
		require.Equal(t, 4, l.AvailableConcurrentPermit())
		require.Equal(t, 2, l.AvailableActivePermit())
	})

	t.Run("permits are released when work panics", func(t *testing.T) {
		l := MustNew(4, 2)

		require.PanicsWithValue(t, "bad", func() {
			_, _ = l.TryAcquireAndRun(func() error { panic("bad") })
		})
		require.Equal(t, 4, l.AvailableConcurrentPermit())
		require.Equal(t, 2, l.AvailableActivePermit())

		admitted, err := l.TryAcquireAndRun(func() error { return nil })
		require.NoError(t, err)
		require.True(t, admitted)
	})
}

func TestCallLimiter_TryAcquireAndRunContext(t *testing.T) {
	t.Run("context is done while waiting for active permit", func(t *testing.T) {
		l := MustNew(2, 1)
		w := newBlockingWork()

		var cr callResults
		cr.fire(t, l, 1, w.run)
		require.Eventually(t, func() bool { return w.running.Load() == 1 }, waitTimeout, waitInterval)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		workCalled := false
		admitted, err := l.TryAcquireAndRunContext(ctx, func(context.Context) error {
			workCalled = true
			return nil
		})
		require.False(t, admitted)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.False(t, workCalled)
		require.Equal(t, 1, l.AvailableConcurrentPermit(), "concurrent permit should be released")
		require.Equal(t, 0, l.Stats().WaitingActive)

		close(w.proceed)
		require.Equal(t, []bool{true}, cr.wait())
		require.Equal(t, 2, l.AvailableConcurrentPermit())
		require.Equal(t, 1, l.AvailableActivePermit())
	})

	t.Run("context is passed to work", func(t *testing.T) {
		type ctxKey struct{}
		l := MustNew(1, 1)
		ctx := context.WithValue(context.Background(), ctxKey{}, "value")

		admitted, err := l.TryAcquireAndRunContext(ctx, func(ctx context.Context) error {
			require.Equal(t, "value", ctx.Value(ctxKey{}))
			return nil
		})
		require.NoError(t, err)
		require.True(t, admitted)
	})
}

func TestCallLimiter_SetMaxConcurrent(t *testing.T) {
	t.Run("change takes effect immediately", func(t *testing.T) {
		l := MustNew(1, 10)

		w := newBlockingWork()
		var cr callResults
		cr.fire(t, l, 2, w.run)
		require.Eventually(t, func() bool {
			return w.started.Load() == 1 && cr.denied.Load() == 1
		}, waitTimeout, waitInterval)
		close(w.proceed)
		require.ElementsMatch(t, []bool{true, false}, cr.wait())
		require.Equal(t, 1, l.AvailableConcurrentPermit())

		require.NoError(t, l.SetMaxConcurrent(2))

		w = newBlockingWork()
		var cr2 callResults
		cr2.fire(t, l, 2, w.run)
		require.Eventually(t, func() bool { return w.started.Load() == 2 }, waitTimeout, waitInterval)
		close(w.proceed)
		require.Equal(t, []bool{true, true}, cr2.wait())
		require.Equal(t, 2, l.AvailableConcurrentPermit())
	})

	t.Run("holders release into old pool", func(t *testing.T) {
		l := MustNew(2, 0)
		oldPool := l.concurrentPermits.Load()

		w := newBlockingWork()
		var cr callResults
		cr.fire(t, l, 2, w.run)
		require.Eventually(t, func() bool { return w.running.Load() == 2 }, waitTimeout, waitInterval)
		require.Equal(t, 0, oldPool.available())

		require.NoError(t, l.SetMaxConcurrent(1))
		require.Equal(t, 1, l.AvailableConcurrentPermit())

		close(w.proceed)
		require.Equal(t, []bool{true, true}, cr.wait())
		require.Equal(t, 2, oldPool.available())
		require.Equal(t, 1, l.AvailableConcurrentPermit())
	})

	t.Run("negative limit is rejected", func(t *testing.T) {
		l := MustNew(3, 3)
		require.ErrorIs(t, l.SetMaxConcurrent(-1), ErrNegativeLimit)
		require.Equal(t, 3, l.MaxConcurrent())
		require.Equal(t, 3, l.AvailableConcurrentPermit())
	})

	t.Run("set to zero removes limit", func(t *testing.T) {
		l := MustNew(1, 0)
		require.NoError(t, l.SetMaxConcurrent(0))

		w := newBlockingWork()
		var cr callResults
		cr.fire(t, l, 5, w.run)
		require.Eventually(t, func() bool { return w.running.Load() == 5 }, waitTimeout, waitInterval)
		close(w.proceed)
		cr.wait()
		require.Equal(t, 0, int(cr.denied.Load()))
	})
}

func TestCallLimiter_SetMaxActive(t *testing.T) {
	t.Run("no blocked calls", func(t *testing.T) {
		noop := func() error { return nil }
		l := MustNew(3, 3)
		_, _ = l.TryAcquireAndRun(noop)

		require.NoError(t, l.SetMaxActive(2))
		_, _ = l.TryAcquireAndRun(noop)
		require.Equal(t, 2, l.AvailableActivePermit())

		require.NoError(t, l.SetMaxActive(1))
		_, _ = l.TryAcquireAndRun(noop)
		require.Equal(t, 1, l.AvailableActivePermit())
	})

	t.Run("blocked call stays on old pool", func(t *testing.T) {
		l := MustNew(10, 2)
		oldPool := l.activePermits.Load()
		w := newBlockingWork()

		// 3 calls, 1 of them is blocked.
		var cr callResults
		cr.fire(t, l, 3, w.run)
		require.Eventually(t, func() bool {
			return w.running.Load() == 2 && oldPool.waiting.Load() == 1
		}, waitTimeout, waitInterval)

		require.NoError(t, l.SetMaxActive(3))
		require.Equal(t, 3, l.AvailableActivePermit())

		// New calls go to the new pool while the old one still has a blocked call.
		w2 := newBlockingWork()
		cr.fire(t, l, 2, w2.run)
		require.Eventually(t, func() bool { return w2.running.Load() == 2 }, waitTimeout, waitInterval)
		require.Equal(t, 1, int(oldPool.waiting.Load()))
		require.Equal(t, 1, l.AvailableActivePermit())

		// Finishing one of the old holders frees a permit in the old pool for the blocked call.
		w.proceed <- struct{}{}
		require.Eventually(t, func() bool {
			return w.started.Load() == 3 && oldPool.waiting.Load() == 0
		}, waitTimeout, waitInterval)
		require.Equal(t, 0, oldPool.available())

		close(w.proceed)
		close(w2.proceed)
		require.Equal(t, []bool{true, true, true, true, true}, cr.wait())
		require.Equal(t, 2, oldPool.available())
		require.Equal(t, 3, l.AvailableActivePermit())
		require.Equal(t, 0, int(cr.denied.Load()))
	})

	t.Run("negative limit is rejected", func(t *testing.T) {
		l := MustNew(3, 3)
		require.ErrorIs(t, l.SetMaxActive(-5), ErrNegativeLimit)
		require.Equal(t, 3, l.MaxActive())
	})
}

func TestCallLimiter_AvailablePermitsAreIdempotent(t *testing.T) {
	l := MustNew(5, 3)
	w := newBlockingWork()
	var cr callResults
	cr.fire(t, l, 2, w.run)
	require.Eventually(t, func() bool { return w.running.Load() == 2 }, waitTimeout, waitInterval)

	for i := 0; i < 10; i++ {
		require.Equal(t, 3, l.AvailableConcurrentPermit())
		require.Equal(t, 1, l.AvailableActivePermit())
	}

	close(w.proceed)
	cr.wait()
	for i := 0; i < 10; i++ {
		require.Equal(t, 5, l.AvailableConcurrentPermit())
		require.Equal(t, 3, l.AvailableActivePermit())
	}
}

func TestCallLimiter_Metrics(t *testing.T) {
	pm := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{Namespace: "test"})
	l, err := NewWithOpts(1, 1, Opts{MetricsCollector: pm})
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(pm.MaxConcurrent))
	require.Equal(t, 1.0, testutil.ToFloat64(pm.MaxActive))

	w := newBlockingWork()
	var cr callResults
	cr.fire(t, l, 1, w.run)
	require.Eventually(t, func() bool { return w.running.Load() == 1 }, waitTimeout, waitInterval)

	admitted, err := l.TryAcquireAndRun(w.run)
	require.NoError(t, err)
	require.False(t, admitted)

	close(w.proceed)
	cr.wait()

	require.NoError(t, l.SetMaxActive(5))
	require.NoError(t, l.SetMaxConcurrent(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.SetMaxActive(1))
	blocker := newBlockingWork()
	var cr2 callResults
	cr2.fire(t, l, 1, blocker.run)
	require.Eventually(t, func() bool { return blocker.running.Load() == 1 }, waitTimeout, waitInterval)
	admitted, err = l.TryAcquireAndRunContext(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, admitted)
	close(blocker.proceed)
	cr2.wait()

	require.Equal(t, 2.0, testutil.ToFloat64(pm.AdmittedTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(pm.RejectedTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(pm.CanceledTotal))
	require.Equal(t, 0.0, testutil.ToFloat64(pm.MaxConcurrent))
	require.Equal(t, 1.0, testutil.ToFloat64(pm.MaxActive))
	var waitMetric dto.Metric
	require.NoError(t, pm.ActiveWaitDuration.Write(&waitMetric))
	require.EqualValues(t, 2, waitMetric.GetHistogram().GetSampleCount())
}

func TestCallLimiter_MetricsGaugesUnderConcurrentReconfiguration(t *testing.T) {
	pm := NewPrometheusMetrics()
	l, err := NewWithOpts(1, 1, Opts{MetricsCollector: pm})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.SetMaxConcurrent(7))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, l.SetMaxActive(9))
		}()
	}
	wg.Wait()

	require.Equal(t, 7.0, testutil.ToFloat64(pm.MaxConcurrent))
	require.Equal(t, 9.0, testutil.ToFloat64(pm.MaxActive))
	require.Equal(t, 7, l.MaxConcurrent())
	require.Equal(t, 9, l.MaxActive())
}

func TestCallLimiter_Logging(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	l, err := NewWithOpts(2, 2, Opts{Logger: logRecorder})
	require.NoError(t, err)

	require.NoError(t, l.SetMaxActive(4))
	logEntry, found := logRecorder.FindEntry("max active limit is changed")
	require.True(t, found)
	require.Equal(t, log.LevelInfo, logEntry.Level)
	prevField, found := logEntry.FindField(LogFieldPrevLimit)
	require.True(t, found)
	require.EqualValues(t, 2, prevField.Int)
	limitField, found := logEntry.FindField(LogFieldLimit)
	require.True(t, found)
	require.EqualValues(t, 4, limitField.Int)

	require.Error(t, l.SetMaxConcurrent(-1))
	logEntry, found = logRecorder.FindEntry("negative max concurrent limit is ignored")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)
}
