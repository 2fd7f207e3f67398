// File: chrdev/registry.go
// Package chrdev
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registry is the fixed-size device table. Ids are caller-chosen in
// [0, MaxDevices); each id maps to a slot that is either free or holds
// exactly one live device. Register and Unregister on the same id are
// serialized by the slot's life lock; different ids proceed in parallel.

package chrdev

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-chrdev/api"
	"github.com/momentics/hioload-chrdev/internal/concurrency"
	"github.com/momentics/hioload-chrdev/internal/storage"
)

type slot struct {
	life sync.Mutex
	cur  atomic.Pointer[device]
}

// Registry owns every device slot. Create one per subsystem with New and
// tear it down once with Close.
type Registry struct {
	slots  []slot
	cfg    registryConfig
	sched  api.Scheduler
	owned  *concurrency.Scheduler
	logger *log.Logger
	delay  atomic.Int64

	mu       sync.Mutex // region reservations
	reserved []bool

	closed atomic.Bool
}

// New builds a registry. Without WithScheduler it starts and owns a scheduler.
func New(opts ...Option) (*Registry, error) {
	cfg := registryConfig{
		maxDevices: DefaultMaxDevices,
		bufferLen:  DefaultBufferLen,
		delay:      DefaultProducerDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxDevices <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "max devices must be positive").
			WithContext("max_devices", cfg.maxDevices)
	}
	if cfg.bufferLen < 2 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "buffer length must be at least 2").
			WithContext("buf_len", cfg.bufferLen)
	}
	if cfg.delay <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "producer delay must be positive").
			WithContext("delay", cfg.delay)
	}
	if cfg.logger == nil {
		cfg.logger = log.Default()
	}
	if cfg.alloc == nil {
		cfg.alloc = storage.DefaultAllocator()
	}
	r := &Registry{
		slots:    make([]slot, cfg.maxDevices),
		reserved: make([]bool, cfg.maxDevices),
		cfg:      cfg,
		logger:   cfg.logger,
	}
	if cfg.sched != nil {
		r.sched = cfg.sched
	} else {
		r.owned = concurrency.NewScheduler()
		r.sched = r.owned
	}
	r.delay.Store(int64(cfg.delay))
	return r, nil
}

// MaxDevices returns the slot table size.
func (r *Registry) MaxDevices() int { return len(r.slots) }

// BufferLen returns the default per-device storage size.
func (r *Registry) BufferLen() int { return r.cfg.bufferLen }

// ProducerDelay returns the default producer period.
func (r *Registry) ProducerDelay() time.Duration { return time.Duration(r.delay.Load()) }

func (r *Registry) invalidID(id uint) error {
	return api.NewError(api.ErrCodeInvalidID, "invalid device id").
		WithContext("id", id).WithContext("max", len(r.slots))
}

// AllocRegion reserves count contiguous ids and returns the first one.
func (r *Registry) AllocRegion(count int) (uint, error) {
	if count <= 0 {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "region count must be positive").WithContext("count", count)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run := 0
	for i := range r.reserved {
		if r.reserved[i] {
			run = 0
			continue
		}
		run++
		if run == count {
			base := i - count + 1
			for j := base; j <= i; j++ {
				r.reserved[j] = true
			}
			return uint(base), nil
		}
	}
	return 0, api.NewError(api.ErrCodeOutOfIDs, "no free id range").
		WithContext("count", count).WithContext("max", len(r.slots))
}

// FreeRegion releases ids reserved by AllocRegion.
func (r *Registry) FreeRegion(base uint, count int) error {
	if count <= 0 || base >= uint(len(r.slots)) || int(base)+count > len(r.slots) {
		return api.NewError(api.ErrCodeInvalidArgument, "bad region").
			WithContext("base", base).WithContext("count", count)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := int(base); i < int(base)+count; i++ {
		if !r.reserved[i] {
			return api.NewError(api.ErrCodeNotFound, "region not reserved").WithContext("id", i)
		}
	}
	for i := int(base); i < int(base)+count; i++ {
		r.reserved[i] = false
	}
	return nil
}

// Register brings id up as a device named label and returns a handle to it.
// owner and parent are opaque to the registry and reported back by Owner.
func (r *Registry) Register(label string, id uint, readOnly bool, owner, parent any, opts ...RegisterOption) (*Handle, error) {
	if r.closed.Load() {
		return nil, api.NewError(api.ErrCodeClosed, "registry is closed")
	}
	if id >= uint(len(r.slots)) {
		r.logger.Printf("[chrdev] invalid id %d", id)
		return nil, r.invalidID(id)
	}
	if label == "" || len(label) > api.MaxLabelLen {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "label must be 1..31 bytes").WithContext("label", label)
	}
	cfg := deviceConfig{
		variant:   api.VariantRing,
		size:      r.cfg.bufferLen,
		autoStart: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.size < 2 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "buffer size must be at least 2").WithContext("size", cfg.size)
	}

	s := &r.slots[id]
	s.life.Lock()
	defer s.life.Unlock()
	if s.cur.Load() != nil {
		r.logger.Printf("[chrdev] id %d is busy", id)
		return nil, api.NewError(api.ErrCodeBusy, "device id is busy").WithContext("id", id)
	}

	buf, err := storage.New(r.cfg.alloc, cfg.size)
	if err != nil {
		r.logger.Printf("[chrdev] cannot allocate memory buffer for %s: %v", label, err)
		return nil, api.NewError(api.ErrCodeOutOfMemory, "cannot allocate device storage").
			WithContext("id", id).WithContext("size", cfg.size).WithContext("cause", err.Error())
	}
	d := &device{
		id:      id,
		label:   label,
		name:    fmt.Sprintf("%s@%d", label, id),
		variant: cfg.variant,
		size:    cfg.size,
		owner:   owner,
		parent:  parent,
		logger:  r.logger,
		buf:     buf,
		subs:    concurrency.NewNotifier(),
	}
	d.readOnly.Store(readOnly)
	if cfg.variant == api.VariantRing {
		d.ring = concurrency.NewByteRing(buf.Bytes())
		d.prod = newProducer(d, r.sched, cfg.generator)
		if cfg.autoStart {
			period := cfg.period
			if period <= 0 {
				period = r.ProducerDelay()
			}
			if err := d.prod.Start(period); err != nil {
				// Nothing is visible yet; drop the storage and bail.
				d.prod.Stop()
				_ = buf.Release()
				return nil, fmt.Errorf("start producer for %s: %w", d.name, err)
			}
		}
	}
	s.cur.Store(d)
	r.logger.Printf("[chrdev] chrdev %s with id %d added", label, id)
	return newHandle(d), nil
}

// Unregister tears down id. The label must match the registered one.
func (r *Registry) Unregister(label string, id uint) error {
	if id >= uint(len(r.slots)) {
		r.logger.Printf("[chrdev] invalid id %d", id)
		return r.invalidID(id)
	}
	s := &r.slots[id]
	s.life.Lock()
	defer s.life.Unlock()
	d := s.cur.Load()
	if d == nil || d.label != label {
		r.logger.Printf("[chrdev] id %d is not busy or label %s is not known", id, label)
		return api.NewError(api.ErrCodeNotFound, "device not registered").
			WithContext("id", id).WithContext("label", label)
	}
	s.cur.Store(nil)
	err := d.shutdown()
	r.logger.Printf("[chrdev] chrdev %s with id %d removed", label, id)
	return err
}

func (r *Registry) current(id uint) (*device, error) {
	if id >= uint(len(r.slots)) {
		return nil, r.invalidID(id)
	}
	d := r.slots[id].cur.Load()
	if d == nil {
		return nil, api.NewError(api.ErrCodeNotFound, "device not found").WithContext("id", id)
	}
	return d, nil
}

// Get returns a snapshot of the device at id; false for out-of-range or free ids.
func (r *Registry) Get(id uint) (api.DeviceInfo, bool) {
	d, err := r.current(id)
	if err != nil {
		return api.DeviceInfo{}, false
	}
	return d.info(), true
}

// Owner returns the owner and parent passed to Register.
func (r *Registry) Owner(id uint) (owner, parent any, ok bool) {
	d, err := r.current(id)
	if err != nil {
		return nil, nil, false
	}
	return d.owner, d.parent, true
}

// Open returns a new handle to the device at id.
func (r *Registry) Open(id uint) (*Handle, error) {
	d, err := r.current(id)
	if err != nil {
		return nil, err
	}
	return newHandle(d), nil
}

// Read is a shortcut for a one-off ring read on id.
func (r *Registry) Read(ctx context.Context, id uint, p []byte, nonBlocking bool) (int, error) {
	h, err := r.Open(id)
	if err != nil {
		return 0, err
	}
	defer h.Close()
	return h.Read(ctx, p, nonBlocking)
}

// Produce fires the producer of a ring device once.
func (r *Registry) Produce(id uint) (bool, error) {
	d, err := r.current(id)
	if err != nil {
		return false, err
	}
	if d.prod == nil {
		return false, api.NewError(api.ErrCodeNotSupported, "device has no producer").WithContext("id", id)
	}
	return d.prod.Fire(), nil
}

// Producer returns the producer driving id, or nil for flat devices.
func (r *Registry) Producer(id uint) (*Producer, error) {
	d, err := r.current(id)
	if err != nil {
		return nil, err
	}
	return d.prod, nil
}

// SetProducerDelay changes the default period and retunes running producers.
func (r *Registry) SetProducerDelay(delay time.Duration) error {
	if delay <= 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "producer delay must be positive").WithContext("delay", delay)
	}
	r.delay.Store(int64(delay))
	for i := range r.slots {
		if d := r.slots[i].cur.Load(); d != nil && d.prod != nil {
			d.prod.SetPeriod(delay)
		}
	}
	return nil
}

// Devices snapshots every registered device in id order.
func (r *Registry) Devices() []api.DeviceInfo {
	var out []api.DeviceInfo
	for i := range r.slots {
		if d := r.slots[i].cur.Load(); d != nil {
			out = append(out, d.info())
		}
	}
	return out
}

// Stats returns per-device counters keyed "chrdev.<id>.<counter>".
func (r *Registry) Stats() map[string]any {
	stats := make(map[string]any)
	registered := 0
	for i := range r.slots {
		d := r.slots[i].cur.Load()
		if d == nil {
			continue
		}
		registered++
		prefix := fmt.Sprintf("chrdev.%d.", d.id)
		stats[prefix+"produced"] = d.produced.Load()
		stats[prefix+"dropped"] = d.dropped.Load()
		stats[prefix+"read_bytes"] = d.readBytes.Load()
		stats[prefix+"wakeups"] = d.queue.Wakeups()
		stats[prefix+"subscribers"] = d.subs.Len()
		stats[prefix+"opens"] = int(d.opens.Load())
	}
	stats["chrdev.registered"] = registered
	stats["chrdev.max_devices"] = len(r.slots)
	return stats
}

// UnregisterAll tears down every registered device concurrently.
func (r *Registry) UnregisterAll() error {
	var g errgroup.Group
	for i := range r.slots {
		d := r.slots[i].cur.Load()
		if d == nil {
			continue
		}
		label, id := d.label, d.id
		g.Go(func() error {
			err := r.Unregister(label, id)
			if api.CodeOf(err) == api.ErrCodeNotFound {
				// Raced with another unregister.
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Close unregisters everything and stops the owned scheduler. Idempotent.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := r.UnregisterAll()
	if r.owned != nil {
		r.owned.Close()
	}
	return err
}
