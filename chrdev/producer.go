// File: chrdev/producer.go
// Package chrdev
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Producer simulates the device interrupt: once per period it writes one
// generated byte into its device's ring. The callback runs on the
// scheduler goroutine and never sleeps.

package chrdev

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-chrdev/api"
)

// ErrProducerStopped is returned by Start after Stop.
var ErrProducerStopped = errors.New("chrdev: producer stopped")

// Producer feeds one ring device.
type Producer struct {
	dev   *device
	sched api.Scheduler
	next  Generator

	mu      sync.Mutex // control path only
	task    api.PeriodicTask
	stopped bool

	fired atomic.Uint64
}

func newProducer(d *device, sched api.Scheduler, g Generator) *Producer {
	if g == nil {
		g = Alphabet()
	}
	return &Producer{dev: d, sched: sched, next: g}
}

// Start arms the periodic callback. Starting a running producer retunes it.
func (p *Producer) Start(period time.Duration) error {
	if period <= 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "producer period must be positive").
			WithContext("period", period)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrProducerStopped
	}
	if p.task != nil {
		p.task.SetPeriod(int64(period))
		return nil
	}
	task, err := p.sched.SchedulePeriodic(int64(period), func() { p.Fire() })
	if err != nil {
		return err
	}
	p.task = task
	return nil
}

// Fire performs exactly one producer write. It reports whether the byte was
// stored rather than dropped.
func (p *Producer) Fire() bool {
	p.fired.Add(1)
	return p.dev.producerWrite(p.next())
}

// SetPeriod retunes a running producer; no-op when not started.
func (p *Producer) SetPeriod(period time.Duration) {
	if period <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task != nil {
		p.task.SetPeriod(int64(period))
	}
}

// Period returns the armed period, 0 if not running.
func (p *Producer) Period() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task == nil {
		return 0
	}
	return time.Duration(p.task.Period())
}

// Running reports whether the periodic callback is armed.
func (p *Producer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task != nil
}

// Stop cancels the callback and waits for an in-flight invocation to finish.
// After Stop returns the producer never fires again from the scheduler.
func (p *Producer) Stop() {
	p.mu.Lock()
	task := p.task
	p.task = nil
	p.stopped = true
	p.mu.Unlock()
	if task != nil {
		_ = p.sched.Cancel(task)
	}
}

// Fired returns the number of callback invocations.
func (p *Producer) Fired() uint64 {
	return p.fired.Load()
}
