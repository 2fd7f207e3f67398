// Package api
// Author: momentics@gmail.com
//
// Asynchronous completion values and cancellation handles.

package api

// Result carries the outcome of an operation delivered out of band, such as
// a firmware load completing after its request returned.
type Result[T any] struct {
	Value T
	Err   error
}

// Get unpacks the result in the usual (value, error) order.
func (r Result[T]) Get() (T, error) { return r.Value, r.Err }

// Cancelable is a scheduled callback that can be withdrawn.
type Cancelable interface {
	// Cancel withdraws the callback; an in-flight run finishes first.
	Cancel() error
	// Done is closed once the callback can no longer fire.
	Done() <-chan struct{}
	// Err reports why Done closed: nil after a completed one-shot run.
	Err() error
}
