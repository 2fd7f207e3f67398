// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Monotonic timer scheduler backed by a min-heap. One goroutine fires due
// tasks in expiry order. Periodic tasks are re-armed after each run at
// now+period (hrtimer forward-now semantics), so a slow callback delays its
// own next expiry rather than bunching up.

package concurrency

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-chrdev/api"
)

var _ api.Scheduler = (*Scheduler)(nil)

// Scheduler runs timed callbacks on a dedicated goroutine.
type Scheduler struct {
	mu      sync.Mutex
	timerQ  taskHeap
	seq     uint64
	notify  chan struct{}
	stop    chan struct{}
	exited  chan struct{}
	epoch   time.Time
	running *timerTask
	runDone chan struct{}
	closed  bool
	once    sync.Once
}

// NewScheduler starts a scheduler goroutine.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
		epoch:  time.Now(),
	}
	go s.run()
	return s
}

// Now returns nanoseconds since the scheduler started, on the monotonic clock.
func (s *Scheduler) Now() int64 {
	return int64(time.Since(s.epoch))
}

// Schedule runs fn once after delayNanos. Negative delays fire immediately.
func (s *Scheduler) Schedule(delayNanos int64, fn func()) (api.Cancelable, error) {
	return s.add(max(delayNanos, 0), 0, fn)
}

// SchedulePeriodic runs fn every periodNanos until cancelled.
func (s *Scheduler) SchedulePeriodic(periodNanos int64, fn func()) (api.PeriodicTask, error) {
	if periodNanos <= 0 {
		return nil, ErrInvalidPeriod
	}
	return s.add(periodNanos, periodNanos, fn)
}

func (s *Scheduler) add(delay, period int64, fn func()) (*timerTask, error) {
	t := &timerTask{
		fn:    fn,
		sched: s,
		index: -1,
		done:  make(chan struct{}),
	}
	t.period.Store(period)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}
	s.seq++
	t.seq = s.seq
	t.when = s.Now() + delay
	heap.Push(&s.timerQ, t)
	head := t.index == 0
	s.mu.Unlock()

	if head {
		s.poke()
	}
	return t, nil
}

func (s *Scheduler) poke() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Cancel removes c from the queue. If c is running, Cancel waits for the
// invocation to return; afterwards fn is guaranteed not to run again.
func (s *Scheduler) Cancel(c api.Cancelable) error {
	t, ok := c.(*timerTask)
	if !ok || t.sched != s {
		return ErrForeignTask
	}
	s.mu.Lock()
	if t.cancelled {
		s.mu.Unlock()
		return nil
	}
	t.cancelled = true
	if t.index >= 0 {
		heap.Remove(&s.timerQ, t.index)
	}
	var wait chan struct{}
	if s.running == t {
		wait = s.runDone
	}
	s.mu.Unlock()

	if wait != nil {
		<-wait
	}
	t.finish(ErrTaskCancelled)
	return nil
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerQ.Len()
}

// Close stops the scheduler, discarding queued tasks. It waits for a running
// callback to return. Idempotent.
func (s *Scheduler) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		queued := s.timerQ
		s.timerQ = nil
		for _, t := range queued {
			t.index = -1
			t.cancelled = true
		}
		s.mu.Unlock()
		for _, t := range queued {
			t.finish(ErrSchedulerClosed)
		}
		close(s.stop)
		<-s.exited
	})
}

func (s *Scheduler) run() {
	defer close(s.exited)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	for {
		s.mu.Lock()
		if s.timerQ.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
			case <-s.stop:
				return
			}
			continue
		}

		task := s.timerQ[0]
		if wait := task.when - s.Now(); wait > 0 {
			s.mu.Unlock()
			timer.Reset(time.Duration(wait))
			select {
			case <-timer.C:
			case <-s.notify:
				timer.Stop()
			case <-s.stop:
				timer.Stop()
				return
			}
			continue
		}

		heap.Pop(&s.timerQ)
		done := make(chan struct{})
		s.running, s.runDone = task, done
		s.mu.Unlock()

		task.fn()

		s.mu.Lock()
		s.running, s.runDone = nil, nil
		close(done)
		var (
			retire    bool
			retireErr error
		)
		switch p := task.period.Load(); {
		case task.cancelled:
		case p > 0 && !s.closed:
			task.when = s.Now() + p
			heap.Push(&s.timerQ, task)
		case p > 0:
			retire, retireErr = true, ErrSchedulerClosed
		default:
			retire = true
		}
		s.mu.Unlock()
		if retire {
			task.finish(retireErr)
		}
	}
}

// timerTask implements api.PeriodicTask.
type timerTask struct {
	when      int64
	seq       uint64
	period    atomic.Int64
	fn        func()
	index     int
	cancelled bool // guarded by sched.mu
	sched     *Scheduler

	done    chan struct{}
	doneErr error
	once    sync.Once
}

func (t *timerTask) finish(err error) {
	t.once.Do(func() {
		t.doneErr = err
		close(t.done)
	})
}

// Cancel cancels the task through its scheduler.
func (t *timerTask) Cancel() error { return t.sched.Cancel(t) }

// Done is closed once the task can no longer fire.
func (t *timerTask) Done() <-chan struct{} { return t.done }

// Err returns nil for a one-shot that ran, else the cancellation reason.
func (t *timerTask) Err() error {
	select {
	case <-t.done:
		return t.doneErr
	default:
		return nil
	}
}

// SetPeriod retunes a periodic task; takes effect at the next re-arm.
func (t *timerTask) SetPeriod(periodNanos int64) {
	if periodNanos > 0 && t.period.Load() > 0 {
		t.period.Store(periodNanos)
	}
}

// Period returns the current period, 0 for one-shot tasks.
func (t *timerTask) Period() int64 { return t.period.Load() }

type taskHeap []*timerTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].when == h[j].when {
		return h[i].seq < h[j].seq
	}
	return h[i].when < h[j].when
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*timerTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
