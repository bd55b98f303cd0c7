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

	"go.uber.org/atomic"

	"github.com/zanata/restlimit/log"
)

// ErrNegativeLimit is returned when a negative value is used as a cap.
var ErrNegativeLimit = errors.New("limit should not be negative")

// Log fields for CallLimiter.
const (
	LogFieldMaxConcurrent = "max_concurrent"
	LogFieldMaxActive     = "max_active"
	LogFieldPrevLimit     = "prev_limit"
	LogFieldLimit         = "limit"
)

// Work is a unit of work guarded by CallLimiter.
type Work func(ctx context.Context) error

// Opts represents options for CallLimiter.
type Opts struct {
	// Logger is used for logging reconfigurations and denied calls. Logging is disabled if nil.
	Logger log.FieldLogger

	// MetricsCollector collects admission metrics. Metrics are disabled if nil.
	MetricsCollector MetricsCollector
}

// Stats is a point-in-time snapshot of the limiter state.
type Stats struct {
	MaxConcurrent       int `json:"maxConcurrent"`
	MaxActive           int `json:"maxActive"`
	AvailableConcurrent int `json:"availableConcurrent"`
	AvailableActive     int `json:"availableActive"`
	WaitingActive       int `json:"waitingActive"`
}

// CallLimiter limits how many calls may be concurrently accepted and how many of them may be actively executing.
// A single CallLimiter is supposed to be created at startup and shared by all call sites that need admission control.
type CallLimiter struct {
	concurrentPermits atomic.Pointer[permitPool]
	activePermits     atomic.Pointer[permitPool]

	logger           log.FieldLogger
	metricsCollector MetricsCollector
}

// New creates a new CallLimiter. Zero value of maxConcurrent or maxActive means no limit.
func New(maxConcurrent, maxActive int) (*CallLimiter, error) {
	return NewWithOpts(maxConcurrent, maxActive, Opts{})
}

// MustNew is a version of New that panics on error.
func MustNew(maxConcurrent, maxActive int) *CallLimiter {
	l, err := New(maxConcurrent, maxActive)
	if err != nil {
		panic(err)
	}
	return l
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(maxConcurrent, maxActive int, opts Opts) (*CallLimiter, error) {
	if maxConcurrent < 0 {
		return nil, fmt.Errorf("max concurrent: %w, got %d", ErrNegativeLimit, maxConcurrent)
	}
	if maxActive < 0 {
		return nil, fmt.Errorf("max active: %w, got %d", ErrNegativeLimit, maxActive)
	}

	l := &CallLimiter{logger: opts.Logger, metricsCollector: opts.MetricsCollector}
	if l.logger == nil {
		l.logger = log.NewDisabledLogger()
	}
	if l.metricsCollector == nil {
		l.metricsCollector = disabledMetrics{}
	}
	l.concurrentPermits.Store(newPermitPool(maxConcurrent))
	l.activePermits.Store(newPermitPool(maxActive))
	l.metricsCollector.SetMaxConcurrent(maxConcurrent)
	l.metricsCollector.SetMaxActive(maxActive)
	return l, nil
}

// TryAcquireAndRun tries to take a concurrent permit without blocking, then waits for an active permit
// and runs the work. It returns false if there is no free concurrent permit, the work is not called in this case.
// Otherwise, it returns true and the error returned by the work.
// Both permits are released when the work is finished, even if it panics.
func (l *CallLimiter) TryAcquireAndRun(work func() error) (bool, error) {
	return l.TryAcquireAndRunContext(context.Background(), func(context.Context) error {
		return work()
	})
}

// TryAcquireAndRunContext is a version of TryAcquireAndRun that stops waiting for an active permit when ctx is done.
// In this case, the concurrent permit is released and false is returned together with ctx.Err().
func (l *CallLimiter) TryAcquireAndRunContext(ctx context.Context, work Work) (admitted bool, err error) {
	concurrentPermits := l.concurrentPermits.Load()
	if !concurrentPermits.tryAcquire() {
		l.metricsCollector.IncRejected()
		l.logger.Debug("call is denied, no free concurrent permit",
			log.Int(LogFieldMaxConcurrent, concurrentPermits.size()))
		return false, nil
	}
	defer concurrentPermits.release()

	activePermits := l.activePermits.Load()
	waitStartTime := time.Now()
	if err = activePermits.acquire(ctx); err != nil {
		l.metricsCollector.IncCanceled()
		return false, err
	}
	defer activePermits.release()

	l.metricsCollector.ObserveActiveWait(time.Since(waitStartTime))
	l.metricsCollector.IncAdmitted()

	return true, work(ctx)
}

// SetMaxConcurrent replaces the pool of concurrent permits with a new one of the given size.
// Calls that already hold a permit release it into the old pool.
func (l *CallLimiter) SetMaxConcurrent(n int) error {
	if n < 0 {
		l.logger.Warn("negative max concurrent limit is ignored", log.Int(LogFieldLimit, n))
		return fmt.Errorf("max concurrent: %w, got %d", ErrNegativeLimit, n)
	}
	prev := l.concurrentPermits.Swap(newPermitPool(n))
	l.metricsCollector.SetMaxConcurrent(n)
	l.logger.Info("max concurrent limit is changed",
		log.Int(LogFieldPrevLimit, prev.size()), log.Int(LogFieldLimit, n))
	return nil
}

// SetMaxActive replaces the pool of active permits with a new one of the given size.
// Calls that already hold a permit, or are blocked waiting for one, keep using the old pool.
func (l *CallLimiter) SetMaxActive(n int) error {
	if n < 0 {
		l.logger.Warn("negative max active limit is ignored", log.Int(LogFieldLimit, n))
		return fmt.Errorf("max active: %w, got %d", ErrNegativeLimit, n)
	}
	prev := l.activePermits.Swap(newPermitPool(n))
	l.metricsCollector.SetMaxActive(n)
	l.logger.Info("max active limit is changed",
		log.Int(LogFieldPrevLimit, prev.size()), log.Int(LogFieldLimit, n))
	return nil
}

// MaxConcurrent returns the current cap of concurrently accepted calls.
func (l *CallLimiter) MaxConcurrent() int {
	return l.concurrentPermits.Load().size()
}

// MaxActive returns the current cap of actively executing calls.
func (l *CallLimiter) MaxActive() int {
	return l.activePermits.Load().size()
}

// AvailableConcurrentPermit returns the number of free permits in the current concurrent pool.
// It returns 0 if the concurrent cap is unlimited.
func (l *CallLimiter) AvailableConcurrentPermit() int {
	return l.concurrentPermits.Load().available()
}

// AvailableActivePermit returns the number of free permits in the current active pool.
// It returns 0 if the active cap is unlimited.
func (l *CallLimiter) AvailableActivePermit() int {
	return l.activePermits.Load().available()
}

// Stats returns a snapshot of the limiter state.
func (l *CallLimiter) Stats() Stats {
	concurrentPermits := l.concurrentPermits.Load()
	activePermits := l.activePermits.Load()
	return Stats{
		MaxConcurrent:       concurrentPermits.size(),
		MaxActive:           activePermits.size(),
		AvailableConcurrent: concurrentPermits.available(),
		AvailableActive:     activePermits.available(),
		WaitingActive:       int(activePermits.waiting.Load()),
	}
}
