/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limits

import (
	"context"

	"go.uber.org/atomic"
)

// permitPool is a fixed-capacity counting semaphore built on a buffered channel.
// A pool with zero size has no channel and never limits anything.
// The capacity of a pool never changes, resizing is done by replacing the pool.
type permitPool struct {
	slots   chan struct{}
	waiting atomic.Int32
}

func newPermitPool(size int) *permitPool {
	if size == 0 {
		return &permitPool{}
	}
	return &permitPool{slots: make(chan struct{}, size)}
}

func (p *permitPool) unlimited() bool {
	return p.slots == nil
}

func (p *permitPool) size() int {
	return cap(p.slots)
}

// available returns the number of free permits. It is always 0 for the unlimited pool.
func (p *permitPool) available() int {
	return cap(p.slots) - len(p.slots)
}

// tryAcquire takes a permit if one is free right now.
func (p *permitPool) tryAcquire() bool {
	if p.unlimited() {
		return true
	}
	select {
	case p.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// acquire takes a permit, waiting until one is free or ctx is done.
func (p *permitPool) acquire(ctx context.Context) error {
	if p.tryAcquire() {
		return nil
	}

	p.waiting.Inc()
	defer p.waiting.Dec()

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *permitPool) release() {
	if p.unlimited() {
		return
	}
	select {
	case <-p.slots:
	default:
	}
}
