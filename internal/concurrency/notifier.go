// File: internal/concurrency/notifier.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Notifier is the async notification fan-out list. The observer slice is
// replaced copy-on-write with CAS, so NotifyAll takes no lock and is safe
// from the producer context. Observers are compared with ==; observers of
// an uncomparable dynamic type are refused.

package concurrency

import (
	"reflect"
	"sync/atomic"

	"github.com/momentics/hioload-chrdev/api"
)

// Notifier holds subscribed observers.
type Notifier struct {
	observers atomic.Pointer[[]api.Observer]
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	n := &Notifier{}
	n.observers.Store(&[]api.Observer{})
	return n
}

func (n *Notifier) load() *[]api.Observer {
	if p := n.observers.Load(); p != nil {
		return p
	}
	empty := []api.Observer{}
	n.observers.CompareAndSwap(nil, &empty)
	return n.observers.Load()
}

func isComparable(obs api.Observer) bool {
	return obs != nil && reflect.TypeOf(obs).Comparable()
}

// Subscribe adds obs. Subscribing the same observer twice, or an
// uncomparable one, is a no-op and returns false.
func (n *Notifier) Subscribe(obs api.Observer) bool {
	if !isComparable(obs) {
		return false
	}
	for {
		old := n.load()
		for _, o := range *old {
			if o == obs {
				return false
			}
		}
		next := make([]api.Observer, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, obs)
		if n.observers.CompareAndSwap(old, &next) {
			return true
		}
	}
}

// Unsubscribe removes obs; returns false if it was not subscribed.
func (n *Notifier) Unsubscribe(obs api.Observer) bool {
	if !isComparable(obs) {
		return false
	}
	for {
		old := n.load()
		next := make([]api.Observer, 0, len(*old))
		for _, o := range *old {
			if o != obs {
				next = append(next, o)
			}
		}
		if len(next) == len(*old) {
			return false
		}
		if n.observers.CompareAndSwap(old, &next) {
			return true
		}
	}
}

// NotifyAll delivers sig to every observer subscribed at call time.
func (n *Notifier) NotifyAll(sig api.Signal) int {
	obs := *n.load()
	for _, o := range obs {
		o.Notify(sig)
	}
	return len(obs)
}

// Len returns the number of subscribers.
func (n *Notifier) Len() int {
	return len(*n.load())
}

// Clear drops all subscribers.
func (n *Notifier) Clear() {
	n.observers.Store(&[]api.Observer{})
}
