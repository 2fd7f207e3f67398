//go:build linux || darwin || freebsd || netbsd || openbsd

// Package storage
// Author: momentics <momentics@gmail.com>
//
// Unix allocator: device memory comes from anonymous private mappings so it
// is page aligned and freed eagerly with munmap.

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type mmapAllocator struct{}

func (mmapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("storage: mmap %d bytes: %w", size, err)
	}
	return b, nil
}

func (mmapAllocator) Free(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}

// MmapAllocator returns the anonymous-mapping allocator.
func MmapAllocator() Allocator { return mmapAllocator{} }

// DefaultAllocator returns the platform's preferred allocator.
func DefaultAllocator() Allocator { return mmapAllocator{} }

// PageSize returns the system page size.
func PageSize() int { return unix.Getpagesize() }
