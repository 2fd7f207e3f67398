// File: internal/concurrency/spinlock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SpinLock is a non-sleeping mutual exclusion primitive for state shared
// between the producer context and bounded consumer critical sections.

package concurrency

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// spinYieldThreshold is the number of failed CAS attempts before the
// spinning goroutine yields its P. Yielding keeps GOMAXPROCS=1 live; the
// goroutine stays runnable and never parks.
const spinYieldThreshold = 1000

// SpinLock is a test-and-test-and-set lock. The zero value is unlocked.
type SpinLock struct {
	_     cpu.CacheLinePad
	state atomic.Uint32
	_     cpu.CacheLinePad
}

// Lock spins until the lock is acquired.
func (l *SpinLock) Lock() {
	spins := 0
	for {
		if l.state.Load() == 0 && l.state.CompareAndSwap(0, 1) {
			return
		}
		spins++
		if spins >= spinYieldThreshold {
			runtime.Gosched()
			spins = 0
		}
	}
}

// TryLock acquires the lock if it is free.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock. Unlocking an unlocked SpinLock panics, like sync.Mutex.
func (l *SpinLock) Unlock() {
	if l.state.Swap(0) == 0 {
		panic("concurrency: unlock of unlocked SpinLock")
	}
}
