//go:build !(linux || darwin || freebsd || netbsd || openbsd)

// Package storage
// Author: momentics <momentics@gmail.com>
//
// Fallback allocator for platforms without anonymous mmap.

package storage

import "os"

// DefaultAllocator returns the platform's preferred allocator.
func DefaultAllocator() Allocator { return heapAllocator{} }

// PageSize returns the system page size.
func PageSize() int { return os.Getpagesize() }
