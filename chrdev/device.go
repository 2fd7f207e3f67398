// File: chrdev/device.go
// Package chrdev
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// device is one live registration of a slot: storage, cursors, locks,
// wait queue and subscribers. A slot gets a fresh device on every
// Register, so nothing carries over a register/unregister/register cycle.

package chrdev

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-chrdev/api"
	"github.com/momentics/hioload-chrdev/internal/concurrency"
	"github.com/momentics/hioload-chrdev/internal/storage"
)

type device struct {
	id      uint
	label   string
	name    string
	variant api.Variant
	size    int
	owner   any
	parent  any
	logger  *log.Logger

	readOnly atomic.Bool
	dead     atomic.Bool  // set first thing on unregister
	ready    atomic.Bool  // has unread data; written under lock
	full     atomic.Bool  // last producer write found the ring full
	opens    atomic.Int32 // live handles

	mux      sync.Mutex           // consumer-side, may be held across a wait
	lock     concurrency.SpinLock // ring cursors and released
	ring     *concurrency.ByteRing
	buf      *storage.Buffer
	released bool // guarded by lock

	queue concurrency.WaitQueue
	subs  *concurrency.Notifier
	prod  *Producer

	produced  atomic.Uint64
	dropped   atomic.Uint64
	readBytes atomic.Uint64
}

func (d *device) gone() error {
	return api.NewError(api.ErrCodeNotFound, "device not found").WithContext("id", d.id)
}

// producerWrite stores one byte, then wakes waiters and notifies
// subscribers outside the spin lock. Never sleeps. Returns false when the
// byte was dropped.
func (d *device) producerWrite(b byte) bool {
	d.lock.Lock()
	if d.released {
		d.lock.Unlock()
		return false
	}
	ok := d.ring.Write(b)
	d.ready.Store(!d.ring.IsEmpty())
	d.lock.Unlock()

	if ok {
		d.produced.Add(1)
		d.full.Store(false)
	} else {
		d.dropped.Add(1)
		if !d.full.Swap(true) {
			d.logger.Printf("[chrdev] %s: buffer full, dropping data", d.name)
		}
	}
	d.queue.WakeAll()
	d.subs.NotifyAll(api.Signal{ID: d.id, Band: api.PollIn | api.PollRdNorm})
	return ok
}

// readable reports unread data without touching the cursors.
func (d *device) readable() bool {
	return d.ready.Load()
}

// ringRead drains up to len(p) contiguous bytes.
func (d *device) ringRead(ctx context.Context, p []byte, nonBlocking bool) (int, error) {
	d.mux.Lock()
	defer d.mux.Unlock()

	if d.dead.Load() {
		return 0, d.gone()
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !d.readable() {
		if nonBlocking {
			return 0, api.NewError(api.ErrCodeWouldBlock, "no data available").WithContext("id", d.id)
		}
		err := d.queue.Wait(ctx, func() bool {
			return d.dead.Load() || d.readable()
		})
		if err != nil {
			return 0, api.NewError(api.ErrCodeInterrupted, "read interrupted").
				WithContext("id", d.id).WithContext("cause", err.Error())
		}
		if d.dead.Load() {
			return 0, d.gone()
		}
	}

	// The tail only moves after the bytes are out of the ring, in the same
	// critical section.
	d.lock.Lock()
	n := copy(p, d.ring.ReadSpan())
	d.ring.AdvanceTail(n)
	d.ready.Store(!d.ring.IsEmpty())
	d.lock.Unlock()

	d.readBytes.Add(uint64(n))
	return n, nil
}

// poll returns the readiness mask; it never mutates state.
func (d *device) poll() api.PollMask {
	if d.dead.Load() {
		return api.PollHup
	}
	switch d.variant {
	case api.VariantFlat:
		m := api.PollIn | api.PollRdNorm
		if !d.readOnly.Load() {
			m |= api.PollOut | api.PollWrNorm
		}
		return m
	default:
		if d.readable() {
			return api.PollIn | api.PollRdNorm
		}
		return 0
	}
}

// waitReadable parks until poll reports PollIn.
func (d *device) waitReadable(ctx context.Context) error {
	if d.variant == api.VariantFlat {
		if d.dead.Load() {
			return d.gone()
		}
		return nil
	}
	err := d.queue.Wait(ctx, func() bool {
		return d.dead.Load() || d.readable()
	})
	if err != nil {
		return api.NewError(api.ErrCodeInterrupted, "wait interrupted").
			WithContext("id", d.id).WithContext("cause", err.Error())
	}
	if d.dead.Load() {
		return d.gone()
	}
	return nil
}

// flatRead copies from storage at pos, clamped to the end of the buffer.
func (d *device) flatRead(p []byte, pos int64) (int, error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.dead.Load() {
		return 0, d.gone()
	}
	data := d.buf.Bytes()
	if pos < 0 || pos >= int64(len(data)) {
		return 0, nil
	}
	n := copy(p, data[pos:])
	d.readBytes.Add(uint64(n))
	return n, nil
}

// flatWrite copies into storage at pos, clamped to the end of the buffer.
func (d *device) flatWrite(p []byte, pos int64) (int, error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.dead.Load() {
		return 0, d.gone()
	}
	if d.readOnly.Load() {
		return 0, api.NewError(api.ErrCodeReadOnly, "device is read-only").WithContext("id", d.id)
	}
	data := d.buf.Bytes()
	if pos < 0 || pos >= int64(len(data)) {
		return 0, nil
	}
	return copy(data[pos:], p), nil
}

// mapRange hands out a reference to storage[offset:offset+length].
func (d *device) mapRange(offset, length int) (*Mapping, error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.dead.Load() {
		return nil, d.gone()
	}
	size := d.size
	if offset < 0 || length <= 0 || offset > size || length > size-offset {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "mapping out of range").
			WithContext("offset", offset).WithContext("length", length)
	}
	if err := d.buf.Retain(); err != nil {
		return nil, d.gone()
	}
	return &Mapping{buf: d.buf, data: d.buf.Bytes()[offset : offset+length]}, nil
}

func (d *device) info() api.DeviceInfo {
	info := api.DeviceInfo{
		ID:       d.id,
		Label:    d.label,
		ReadOnly: d.readOnly.Load(),
		Variant:  d.variant,
		Name:     d.name,
	}
	if d.variant == api.VariantRing {
		d.lock.Lock()
		if !d.released {
			info.Buffered = d.ring.Len()
		}
		d.lock.Unlock()
	}
	return info
}

// shutdown runs the unregister barrier. The caller holds the slot's life lock.
func (d *device) shutdown() error {
	d.dead.Store(true)
	if d.prod != nil {
		d.prod.Stop()
	}
	d.queue.WakeAll()
	d.subs.NotifyAll(api.Signal{ID: d.id, Band: api.PollHup})

	// Blocked readers saw dead and left; wait out the in-flight ones.
	d.mux.Lock()
	d.lock.Lock()
	d.released = true
	d.ready.Store(false)
	d.lock.Unlock()
	d.mux.Unlock()

	d.subs.Clear()
	if err := d.buf.Release(); err != nil {
		return fmt.Errorf("release storage of %s: %w", d.name, err)
	}
	return nil
}

// Mapping is a zero-copy view of a flat device's storage. It keeps the
// storage alive until Close, even across Unregister.
type Mapping struct {
	buf  *storage.Buffer
	data []byte
	once sync.Once
}

// Bytes returns the mapped range.
func (m *Mapping) Bytes() []byte { return m.data }

// Close releases the mapping. Bytes must not be used afterwards.
func (m *Mapping) Close() error {
	var err error
	m.once.Do(func() {
		m.data = nil
		err = m.buf.Release()
	})
	return err
}
