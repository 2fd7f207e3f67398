// File: adapters/stats_pump.go
// Package adapters
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// StatsPump copies a stats source into the control metrics on a timer.

package adapters

import (
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-chrdev/api"
)

// StatsSource is anything with a counter snapshot, e.g. *chrdev.Registry.
type StatsSource interface {
	Stats() map[string]any
}

// MetricsSink receives merged snapshots.
type MetricsSink interface {
	MergeMetrics(m map[string]any)
}

type StatsPump struct {
	src   StatsSource
	sink  MetricsSink
	sched api.Scheduler

	mu   sync.Mutex
	task api.PeriodicTask
}

func NewStatsPump(src StatsSource, sink MetricsSink, sched api.Scheduler) *StatsPump {
	return &StatsPump{src: src, sink: sink, sched: sched}
}

// Flush copies one snapshot now.
func (p *StatsPump) Flush() {
	p.sink.MergeMetrics(p.src.Stats())
}

// Start flushes immediately and then every period. Starting twice retunes.
func (p *StatsPump) Start(period time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task != nil {
		p.task.SetPeriod(int64(period))
		return nil
	}
	p.Flush()
	task, err := p.sched.SchedulePeriodic(int64(period), p.Flush)
	if err != nil {
		return err
	}
	p.task = task
	return nil
}

// Stop cancels the timer and waits for an in-flight flush. Stopping a
// stopped pump is a no-op.
func (p *StatsPump) Stop() error {
	p.mu.Lock()
	task := p.task
	p.task = nil
	p.mu.Unlock()
	if task == nil {
		return nil
	}
	if err := p.sched.Cancel(task); err != nil {
		return fmt.Errorf("stats pump: cancel: %w", err)
	}
	return nil
}
