// File: chrdev/handle.go
// Package chrdev
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle is an open reference to one registration of a device. It is the
// consumer API: read, write, poll, wait, seek, map, ioctl and subscribe.
// A handle outlives its registration only as a tombstone; once the device
// is unregistered every call fails with api.ErrNotFound.

package chrdev

import (
	"context"
	"io"
	"reflect"
	"sync"

	"github.com/momentics/hioload-chrdev/api"
)

// Handle is safe for concurrent use.
type Handle struct {
	dev *device

	mu     sync.Mutex
	pos    int64
	subs   []api.Observer
	closed bool
}

var _ io.Seeker = (*Handle)(nil)

func newHandle(d *device) *Handle {
	d.opens.Add(1)
	return &Handle{dev: d}
}

func (h *Handle) check() error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return api.NewError(api.ErrCodeClosed, "handle is closed").WithContext("id", h.dev.id)
	}
	if h.dev.dead.Load() {
		return h.dev.gone()
	}
	return nil
}

// ID returns the device id.
func (h *Handle) ID() uint { return h.dev.id }

// Read fills p from the device. On a ring device it returns at least one
// byte unless len(p) == 0; when empty it fails with api.ErrWouldBlock if
// nonBlocking, else waits until data arrives, the device is unregistered
// (api.ErrNotFound) or ctx is done (api.ErrInterrupted). On a flat device it
// reads at the handle's position and returns 0 at end of buffer.
func (h *Handle) Read(ctx context.Context, p []byte, nonBlocking bool) (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if h.dev.variant == api.VariantRing {
		return h.dev.ringRead(ctx, p, nonBlocking)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.dev.flatRead(p, h.pos)
	h.pos += int64(n)
	return n, err
}

// Write copies p into a flat device at the handle's position, clamped to
// the buffer end. Ring devices are producer-fed and reject writes.
func (h *Handle) Write(p []byte) (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if h.dev.variant == api.VariantRing {
		return 0, api.NewError(api.ErrCodeNotSupported, "ring device is producer-fed").WithContext("id", h.dev.id)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.dev.flatWrite(p, h.pos)
	h.pos += int64(n)
	return n, err
}

// Poll returns the current readiness mask. PollHup means the device is gone.
func (h *Handle) Poll() api.PollMask {
	return h.dev.poll()
}

// WaitReadable blocks until Poll would report PollIn.
func (h *Handle) WaitReadable(ctx context.Context) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.dev.waitReadable(ctx)
}

// Seek implements io.Seeker for flat devices. The result must stay in
// [0, len).
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if h.dev.variant == api.VariantRing {
		return 0, api.NewError(api.ErrCodeNotSupported, "ring device is not seekable").WithContext("id", h.dev.id)
	}
	size := int64(h.dev.size)
	h.mu.Lock()
	defer h.mu.Unlock()
	var next int64
	switch whence {
	case api.SeekSet:
		next = offset
	case api.SeekCur:
		next = h.pos + offset
	case api.SeekEnd:
		next = size + offset
	default:
		return 0, api.NewError(api.ErrCodeInvalidArgument, "bad whence").WithContext("whence", whence)
	}
	if next < 0 || next >= size {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "seek out of range").
			WithContext("offset", next).WithContext("size", size)
	}
	h.pos = next
	return next, nil
}

// Map exposes length bytes of flat-device storage starting at offset.
func (h *Handle) Map(offset, length int) (*Mapping, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	if h.dev.variant == api.VariantRing {
		return nil, api.NewError(api.ErrCodeNotSupported, "ring device cannot be mapped").WithContext("id", h.dev.id)
	}
	return h.dev.mapRange(offset, length)
}

// Info returns the ioctl GETINFO payload.
func (h *Handle) Info() (api.DeviceInfo, error) {
	if err := h.check(); err != nil {
		return api.DeviceInfo{}, err
	}
	return h.dev.info(), nil
}

// SetReadOnly toggles the read-only flag.
func (h *Handle) SetReadOnly(ro bool) error {
	if err := h.check(); err != nil {
		return err
	}
	h.dev.readOnly.Store(ro)
	return nil
}

// Ioctl dispatches api.IocGetInfo (arg *api.DeviceInfo) and
// api.IocSetReadOnly (arg bool, int or *int).
func (h *Handle) Ioctl(cmd uint, arg any) error {
	if cmd>>8 != api.IoctlBase {
		return api.NewError(api.ErrCodeInvalidArgument, "command is not for this device").WithContext("cmd", cmd)
	}
	switch cmd {
	case api.IocGetInfo:
		out, ok := arg.(*api.DeviceInfo)
		if !ok || out == nil {
			return api.NewError(api.ErrCodeFault, "GETINFO needs *api.DeviceInfo")
		}
		info, err := h.Info()
		if err != nil {
			return err
		}
		*out = info
		return nil
	case api.IocSetReadOnly:
		var ro bool
		switch v := arg.(type) {
		case bool:
			ro = v
		case int:
			ro = v != 0
		case *int:
			if v == nil {
				return api.NewError(api.ErrCodeFault, "SET_RDONLY needs a value")
			}
			ro = *v != 0
		default:
			return api.NewError(api.ErrCodeFault, "SET_RDONLY needs bool or int")
		}
		return h.SetReadOnly(ro)
	default:
		return api.NewError(api.ErrCodeNotSupported, "unknown ioctl").WithContext("cmd", cmd)
	}
}

// checkObserver rejects observers that cannot be compared with ==, such as
// value-receiver structs holding a func or slice.
func checkObserver(obs api.Observer) error {
	if obs == nil {
		return api.NewError(api.ErrCodeInvalidArgument, "nil observer")
	}
	if t := reflect.TypeOf(obs); !t.Comparable() {
		return api.NewError(api.ErrCodeInvalidArgument, "observer type is not comparable").WithContext("type", t.String())
	}
	return nil
}

// Subscribe adds obs to the device's notification list. Handle.Close drops
// subscriptions made through this handle.
func (h *Handle) Subscribe(obs api.Observer) error {
	if err := h.check(); err != nil {
		return err
	}
	if err := checkObserver(obs); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev.subs.Subscribe(obs) {
		h.subs = append(h.subs, obs)
	}
	return nil
}

// Unsubscribe removes obs.
func (h *Handle) Unsubscribe(obs api.Observer) error {
	if err := h.check(); err != nil {
		return err
	}
	if err := checkObserver(obs); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dev.subs.Unsubscribe(obs)
	for i, o := range h.subs {
		if o == obs {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
	return nil
}

// Close releases the handle and its subscriptions. Closing twice fails
// with api.ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return api.NewError(api.ErrCodeClosed, "handle already closed").WithContext("id", h.dev.id)
	}
	h.closed = true
	for _, o := range h.subs {
		h.dev.subs.Unsubscribe(o)
	}
	h.subs = nil
	h.dev.opens.Add(-1)
	return nil
}
