// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package chrdev_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/momentics/hioload-chrdev/api"
	"github.com/momentics/hioload-chrdev/chrdev"
)

func newRegistry(t *testing.T, opts ...chrdev.Option) *chrdev.Registry {
	t.Helper()
	opts = append([]chrdev.Option{chrdev.WithLogger(log.New(io.Discard, "", 0))}, opts...)
	r, err := chrdev.New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistry_PollProduceReadScenario(t *testing.T) {
	r := newRegistry(t, chrdev.WithMaxDevices(8))
	h, err := r.Register("dev3", 3, false, nil, nil, chrdev.WithoutProducer())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if h.Poll().Readable() {
		t.Fatal("fresh device must not be readable")
	}
	if ok, err := r.Produce(3); err != nil || !ok {
		t.Fatalf("Produce: ok=%v err=%v", ok, err)
	}
	if !h.Poll().Readable() {
		t.Fatal("device must be readable after one producer write")
	}
	buf := make([]byte, 10)
	n, err := h.Read(context.Background(), buf, false)
	if err != nil || n != 1 || buf[0] != 'A' {
		t.Fatalf("Read = %d %q %v, want 1 \"A\" nil", n, buf[:n], err)
	}
	if h.Poll().Readable() {
		t.Fatal("device must be drained after read")
	}
	if err := r.Unregister("dev3", 3); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := h.Read(context.Background(), buf, false); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Read after unregister = %v, want ErrNotFound", err)
	}
	if _, err := r.Read(context.Background(), 3, buf, true); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Registry.Read after unregister = %v, want ErrNotFound", err)
	}
}

func TestRegistry_DropWhenFullScenario(t *testing.T) {
	r := newRegistry(t)
	h, err := r.Register("dev0", 0, false, nil, nil, chrdev.WithoutProducer(), chrdev.WithRingSize(8))
	if err != nil {
		t.Fatal(err)
	}
	stored := 0
	for i := 0; i < 10; i++ {
		ok, err := r.Produce(0)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			stored++
		}
	}
	if stored != 7 {
		t.Fatalf("stored %d bytes, want 7", stored)
	}
	stats := r.Stats()
	if stats["chrdev.0.dropped"] != uint64(3) {
		t.Fatalf("dropped = %v, want 3", stats["chrdev.0.dropped"])
	}
	buf := make([]byte, 100)
	n, err := h.Read(context.Background(), buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != "ABCDEFG" {
		t.Fatalf("read %q, want %q", got, "ABCDEFG")
	}
}

func TestRegistry_RegisterUnregisterErrors(t *testing.T) {
	r := newRegistry(t, chrdev.WithMaxDevices(4))

	if _, err := r.Register("x", 4, false, nil, nil); !errors.Is(err, api.ErrInvalidID) {
		t.Fatalf("out of range id: %v", err)
	}
	if _, err := r.Register("", 0, false, nil, nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("empty label: %v", err)
	}
	long := "abcdefghijklmnopqrstuvwxyz0123456"
	if _, err := r.Register(long, 0, false, nil, nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("long label: %v", err)
	}

	h, err := r.Register("first", 1, true, "owner", "parent", chrdev.WithoutProducer())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("second", 1, false, nil, nil); !errors.Is(err, api.ErrBusy) {
		t.Fatalf("busy id: %v", err)
	}
	info, err := h.Info()
	if err != nil || info.Label != "first" || !info.ReadOnly || info.Name != "first@1" {
		t.Fatalf("existing registration disturbed: %+v %v", info, err)
	}
	owner, parent, ok := r.Owner(1)
	if !ok || owner != "owner" || parent != "parent" {
		t.Fatalf("Owner = %v %v %v", owner, parent, ok)
	}

	if err := r.Unregister("wrong", 1); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("label mismatch: %v", err)
	}
	if err := r.Unregister("first", 2); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("free id: %v", err)
	}
	if err := r.Unregister("first", 9); !errors.Is(err, api.ErrInvalidID) {
		t.Fatalf("bad id: %v", err)
	}
	if err := r.Unregister("first", 1); err != nil {
		t.Fatal(err)
	}
	if err := r.Unregister("first", 1); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("double unregister: %v", err)
	}
}

func TestRegistry_ReRegisterStartsClean(t *testing.T) {
	r := newRegistry(t)
	old, err := r.Register("dev", 2, false, nil, nil, chrdev.WithoutProducer())
	if err != nil {
		t.Fatal(err)
	}
	r.Produce(2)
	r.Produce(2)
	if err := r.Unregister("dev", 2); err != nil {
		t.Fatal(err)
	}
	fresh, err := r.Register("dev", 2, false, nil, nil, chrdev.WithoutProducer())
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Poll().Readable() {
		t.Fatal("stale data survived re-registration")
	}
	if _, err := old.Info(); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("stale handle: %v", err)
	}
	if old.Poll() != api.PollHup {
		t.Fatalf("stale handle poll = %v, want HUP", old.Poll())
	}
}

// Labels are unique per id only; two ids may share one.
func TestRegistry_SharedLabelAcrossIDsAllowed(t *testing.T) {
	r := newRegistry(t)
	if _, err := r.Register("same", 0, false, nil, nil, chrdev.WithoutProducer()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("same", 1, false, nil, nil, chrdev.WithoutProducer()); err != nil {
		t.Fatalf("second registration with shared label: %v", err)
	}
	if len(r.Devices()) != 2 {
		t.Fatalf("Devices = %v", r.Devices())
	}
	if err := r.Unregister("same", 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get(1); !ok {
		t.Fatal("unregistering id 0 removed id 1")
	}
}

func TestRegistry_GetAndOpen(t *testing.T) {
	r := newRegistry(t)
	if _, ok := r.Get(0); ok {
		t.Fatal("Get on free id")
	}
	if _, ok := r.Get(100); ok {
		t.Fatal("Get on out-of-range id")
	}
	if _, err := r.Open(0); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Open free: %v", err)
	}
	r.Register("g", 0, false, nil, nil, chrdev.WithoutProducer())
	info, ok := r.Get(0)
	if !ok || info.Label != "g" || info.Variant != api.VariantRing {
		t.Fatalf("Get = %+v %v", info, ok)
	}
	h, err := r.Open(0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Stats()["chrdev.0.opens"] != 2 {
		t.Fatalf("opens = %v", r.Stats()["chrdev.0.opens"])
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); !errors.Is(err, api.ErrClosed) {
		t.Fatalf("double close = %v", err)
	}
}

func TestRegistry_AllocRegion(t *testing.T) {
	r := newRegistry(t, chrdev.WithMaxDevices(8))
	base, err := r.AllocRegion(8)
	if err != nil || base != 0 {
		t.Fatalf("AllocRegion(8) = %d %v", base, err)
	}
	if _, err := r.AllocRegion(1); !errors.Is(err, api.ErrOutOfIDs) {
		t.Fatalf("exhausted: %v", err)
	}
	if err := r.FreeRegion(2, 3); err != nil {
		t.Fatal(err)
	}
	if base, err := r.AllocRegion(3); err != nil || base != 2 {
		t.Fatalf("AllocRegion(3) = %d %v", base, err)
	}
	if _, err := r.AllocRegion(0); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("zero count: %v", err)
	}
	if err := r.FreeRegion(7, 2); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("overflowing region: %v", err)
	}
}

func TestRegistry_AllocationFailureRollsBack(t *testing.T) {
	r := newRegistry(t, chrdev.WithAllocator(failingAllocator{}))
	if _, err := r.Register("oom", 0, false, nil, nil); !errors.Is(err, api.ErrOutOfMemory) {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
	if _, ok := r.Get(0); ok {
		t.Fatal("failed registration left the slot busy")
	}
}

type failingAllocator struct{}

func (failingAllocator) Alloc(int) ([]byte, error) { return nil, errors.New("no memory") }
func (failingAllocator) Free([]byte) error         { return nil }

func TestRegistry_PeriodicProducer(t *testing.T) {
	r := newRegistry(t, chrdev.WithProducerDelay(time.Millisecond))
	h, err := r.Register("tick", 5, false, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got []byte
	buf := make([]byte, 4)
	for len(got) < 5 {
		n, err := h.Read(ctx, buf, false)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n < 1 {
			t.Fatal("blocking read returned no data")
		}
		got = append(got, buf[:n]...)
	}
	if string(got[:5]) != "ABCDE" {
		t.Fatalf("producer stream = %q", got)
	}
	p, err := r.Producer(5)
	if err != nil || !p.Running() || p.Period() != time.Millisecond {
		t.Fatalf("producer state: %v %v", p, err)
	}
	if err := r.SetProducerDelay(time.Hour); err != nil {
		t.Fatal(err)
	}
	if p.Period() != time.Hour || r.ProducerDelay() != time.Hour {
		t.Fatalf("retune failed: %v", p.Period())
	}
	if err := r.Unregister("tick", 5); err != nil {
		t.Fatal(err)
	}
	fired := p.Fired()
	time.Sleep(5 * time.Millisecond)
	if p.Fired() != fired || p.Running() {
		t.Fatal("producer fired after unregister")
	}
}

func TestRegistry_CloseRejectsRegister(t *testing.T) {
	r := newRegistry(t)
	r.Register("a", 0, false, nil, nil)
	r.Register("b", 1, false, nil, nil, chrdev.WithFlatBuffer())
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if len(r.Devices()) != 0 {
		t.Fatal("Close left devices registered")
	}
	if _, err := r.Register("c", 2, false, nil, nil); !errors.Is(err, api.ErrClosed) {
		t.Fatalf("Register after Close = %v", err)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	for name, opt := range map[string]chrdev.Option{
		"devices": chrdev.WithMaxDevices(0),
		"buflen":  chrdev.WithBufferLen(1),
		"delay":   chrdev.WithProducerDelay(0),
	} {
		if _, err := chrdev.New(opt); !errors.Is(err, api.ErrInvalidArgument) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}
