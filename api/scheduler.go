// Package api
// Author: momentics
//
// Scheduler contract for high-precision timed and periodic job execution.

package api

// Scheduler abstracts timer scheduling for producers and timeouts.
type Scheduler interface {
	// Schedule schedules a callback to be executed once, after delayNanos.
	Schedule(delayNanos int64, fn func()) (Cancelable, error)

	// SchedulePeriodic runs fn every periodNanos, first after periodNanos.
	// The next expiry is forwarded from the end of each run.
	SchedulePeriodic(periodNanos int64, fn func()) (PeriodicTask, error)

	// Cancel cancels a previously scheduled callback. It waits for an
	// in-flight invocation to return, so it must not be called from fn.
	Cancel(c Cancelable) error

	// Now returns monotonic time in nanoseconds.
	Now() int64
}

// PeriodicTask is a cancelable task whose period can be retuned.
type PeriodicTask interface {
	Cancelable
	// SetPeriod changes the period used for the next re-arm.
	SetPeriod(periodNanos int64)
	// Period returns the current period.
	Period() int64
}
