// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrSchedulerClosed indicates the scheduler has been shut down
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrTaskCancelled is reported by Err on a cancelled task
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrInvalidPeriod indicates a non-positive period for a periodic task
	ErrInvalidPeriod = errors.New("invalid task period")

	// ErrForeignTask indicates a Cancelable not created by this scheduler
	ErrForeignTask = errors.New("task does not belong to this scheduler")
)
