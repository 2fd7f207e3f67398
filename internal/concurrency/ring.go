// File: internal/concurrency/ring.go
// Package concurrency implements the device byte ring.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ByteRing is a bounded circular byte buffer with head (write) and tail
// (read) cursors, padded to keep the producer's and consumer's cursors on
// different cache lines. One slot is always left empty, so usable capacity
// is len(storage)-1. The ring does no locking of its own; callers guard it
// with the owning slot's SpinLock.

package concurrency

import (
	"golang.org/x/sys/cpu"

	"github.com/momentics/hioload-chrdev/api"
)

// Ensure compile-time interface compliance.
var _ api.ByteRing = (*ByteRing)(nil)

// ByteRing. head and tail are always in [0, len(buf)).
type ByteRing struct {
	buf  []byte
	head int
	_    cpu.CacheLinePad
	tail int
	_    cpu.CacheLinePad
}

// NewByteRing wraps storage as an empty ring. Storage must hold at least two bytes.
func NewByteRing(storage []byte) *ByteRing {
	if len(storage) < 2 {
		panic("ring storage must hold at least two bytes")
	}
	return &ByteRing{buf: storage}
}

// Write stores b at head; returns false and drops b if full.
func (r *ByteRing) Write(b byte) bool {
	if r.IsFull() {
		return false
	}
	r.buf[r.head] = b
	r.head = (r.head + 1) % len(r.buf)
	return true
}

// ReadSpan returns the bytes readable without wrapping: buf[tail:head] when
// head >= tail, else buf[tail:N]. The slice aliases ring storage.
func (r *ByteRing) ReadSpan() []byte {
	if r.head >= r.tail {
		return r.buf[r.tail:r.head]
	}
	return r.buf[r.tail:]
}

// AdvanceTail moves tail forward by n modulo N.
func (r *ByteRing) AdvanceTail(n int) {
	r.tail = (r.tail + n) % len(r.buf)
}

// IsEmpty reports head == tail.
func (r *ByteRing) IsEmpty() bool {
	return r.head == r.tail
}

// IsFull reports (head+1) mod N == tail.
func (r *ByteRing) IsFull() bool {
	return (r.head+1)%len(r.buf) == r.tail
}

// Len returns the number of unread bytes.
func (r *ByteRing) Len() int {
	return (r.head - r.tail + len(r.buf)) % len(r.buf)
}

// Cap returns usable capacity.
func (r *ByteRing) Cap() int {
	return len(r.buf) - 1
}

// Cursors returns (head, tail) for diagnostics.
func (r *ByteRing) Cursors() (head, tail int) {
	return r.head, r.tail
}
