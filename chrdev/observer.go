// Package chrdev
// Author: momentics <momentics@gmail.com>
//
// Channel-backed subscriber for asynchronous notification.

package chrdev

import (
	"sync/atomic"

	"github.com/momentics/hioload-chrdev/api"
)

// ChanObserver forwards signals to C without blocking. While C is full new
// signals are coalesced away, like pending SIGIO.
type ChanObserver struct {
	C         chan api.Signal
	coalesced atomic.Uint64
}

var _ api.Observer = (*ChanObserver)(nil)

// NewChanObserver creates an observer with a buffer of depth signals.
func NewChanObserver(depth int) *ChanObserver {
	if depth <= 0 {
		depth = 1
	}
	return &ChanObserver{C: make(chan api.Signal, depth)}
}

// Notify implements api.Observer.
func (o *ChanObserver) Notify(sig api.Signal) {
	select {
	case o.C <- sig:
	default:
		o.coalesced.Add(1)
	}
}

// Coalesced returns how many signals were dropped because C was full.
func (o *ChanObserver) Coalesced() uint64 {
	return o.coalesced.Load()
}
