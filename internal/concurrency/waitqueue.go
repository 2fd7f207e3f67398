// File: internal/concurrency/waitqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WaitQueue parks consumers until a condition holds. Wakers never block:
// WakeAll swaps out the current generation channel and closes it, so every
// parked waiter wakes (no FIFO order) and re-checks its condition.

package concurrency

import (
	"context"
	"sync/atomic"
)

// WaitQueue. The zero value is ready to use.
type WaitQueue struct {
	gen     atomic.Pointer[chan struct{}]
	wakeups atomic.Uint64
}

// channel returns the channel of the current wait generation, creating it
// on first use.
func (q *WaitQueue) channel() <-chan struct{} {
	for {
		if p := q.gen.Load(); p != nil {
			return *p
		}
		ch := make(chan struct{})
		if q.gen.CompareAndSwap(nil, &ch) {
			return ch
		}
	}
}

// Wait blocks until cond returns true or ctx is done. cond is evaluated
// after the waiter joins the current generation, so a WakeAll racing with
// the check is never lost. Returns ctx.Err() on cancellation.
func (q *WaitQueue) Wait(ctx context.Context, cond func() bool) error {
	for {
		ch := q.channel()
		if cond() {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WakeAll releases every current waiter. Safe from any context.
func (q *WaitQueue) WakeAll() {
	if p := q.gen.Swap(nil); p != nil {
		close(*p)
		q.wakeups.Add(1)
	}
}

// Wakeups returns how many generations were released.
func (q *WaitQueue) Wakeups() uint64 {
	return q.wakeups.Load()
}
