// File: internal/storage/buffer.go
// Package storage
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reference-counted device storage. A slot holds one reference from
// register to unregister; every live mapping holds another. The backing
// memory is returned to the allocator only when the last reference drops,
// so a mapping handed out by Map stays valid after its slot unregisters.

package storage

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrReleased is returned when retaining a buffer whose memory is gone.
var ErrReleased = errors.New("storage: buffer already released")

// Allocator obtains and returns zeroed backing memory.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(b []byte) error
}

// Buffer is a reference-counted block of device memory.
type Buffer struct {
	data  []byte
	alloc Allocator
	refs  atomic.Int32
	once  sync.Once
	err   error
}

// New allocates size bytes with alloc (DefaultAllocator when nil). The
// returned buffer holds one reference.
func New(alloc Allocator, size int) (*Buffer, error) {
	if alloc == nil {
		alloc = DefaultAllocator()
	}
	data, err := alloc.Alloc(size)
	if err != nil {
		return nil, err
	}
	b := &Buffer{data: data, alloc: alloc}
	b.refs.Store(1)
	return b, nil
}

// Bytes returns the backing memory. Valid only while a reference is held.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the buffer size.
func (b *Buffer) Len() int { return len(b.data) }

// Retain adds a reference.
func (b *Buffer) Retain() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference and frees the memory on the last one.
func (b *Buffer) Release() error {
	n := b.refs.Add(-1)
	switch {
	case n == 0:
		b.once.Do(func() {
			b.err = b.alloc.Free(b.data)
			b.data = nil
		})
		return b.err
	case n < 0:
		b.refs.Store(0)
		return ErrReleased
	}
	return nil
}

// Refs returns the current reference count.
func (b *Buffer) Refs() int { return int(b.refs.Load()) }

// heapAllocator serves memory from the Go heap.
type heapAllocator struct{}

func (heapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return make([]byte, size), nil
}

func (heapAllocator) Free([]byte) error { return nil }

// HeapAllocator returns an allocator backed by make.
func HeapAllocator() Allocator { return heapAllocator{} }

// ErrInvalidSize rejects non-positive allocations.
var ErrInvalidSize = errors.New("storage: invalid size")
