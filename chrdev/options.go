// File: chrdev/options.go
// Package chrdev defines functional options for Registry and Register.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package chrdev

import (
	"log"
	"time"

	"github.com/momentics/hioload-chrdev/api"
	"github.com/momentics/hioload-chrdev/internal/storage"
)

// Defaults, overridable through module parameters.
const (
	DefaultMaxDevices    = 8
	DefaultBufferLen     = 4096
	DefaultProducerDelay = time.Second
)

// Allocator provides device storage. See storage.Allocator.
type Allocator = storage.Allocator

type registryConfig struct {
	maxDevices int
	bufferLen  int
	delay      time.Duration
	sched      api.Scheduler
	alloc      Allocator
	logger     *log.Logger
}

// Option customizes Registry construction.
type Option func(*registryConfig)

// WithMaxDevices sets the slot table size.
func WithMaxDevices(n int) Option {
	return func(c *registryConfig) {
		c.maxDevices = n
	}
}

// WithBufferLen sets the default storage size per device (BUF_LEN).
func WithBufferLen(n int) Option {
	return func(c *registryConfig) {
		c.bufferLen = n
	}
}

// WithProducerDelay sets the default producer period (delay_ns).
func WithProducerDelay(d time.Duration) Option {
	return func(c *registryConfig) {
		c.delay = d
	}
}

// WithScheduler drives producers from an external scheduler. The registry
// does not close schedulers it did not create.
func WithScheduler(s api.Scheduler) Option {
	return func(c *registryConfig) {
		c.sched = s
	}
}

// WithAllocator overrides storage allocation.
func WithAllocator(a Allocator) Option {
	return func(c *registryConfig) {
		c.alloc = a
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *log.Logger) Option {
	return func(c *registryConfig) {
		c.logger = l
	}
}

type deviceConfig struct {
	variant   api.Variant
	size      int
	generator Generator
	autoStart bool
	period    time.Duration
}

// RegisterOption customizes a single registration.
type RegisterOption func(*deviceConfig)

// WithFlatBuffer registers a positional flat-buffer device instead of a ring.
func WithFlatBuffer() RegisterOption {
	return func(c *deviceConfig) {
		c.variant = api.VariantFlat
	}
}

// WithRingSize sets the storage size N; usable ring capacity is N-1.
func WithRingSize(n int) RegisterOption {
	return func(c *deviceConfig) {
		c.size = n
	}
}

// WithGenerator sets the producer's data source.
func WithGenerator(g Generator) RegisterOption {
	return func(c *deviceConfig) {
		c.generator = g
	}
}

// WithoutProducer keeps the producer stopped; data arrives only through
// Registry.Produce.
func WithoutProducer() RegisterOption {
	return func(c *deviceConfig) {
		c.autoStart = false
	}
}

// WithPeriod overrides the producer period for this device.
func WithPeriod(d time.Duration) RegisterOption {
	return func(c *deviceConfig) {
		c.period = d
	}
}
