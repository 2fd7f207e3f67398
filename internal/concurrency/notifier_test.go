// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package concurrency

import (
	"sync"
	"testing"

	"github.com/momentics/hioload-chrdev/api"
)

type countingObserver struct {
	mu   sync.Mutex
	sigs []api.Signal
}

func (o *countingObserver) Notify(sig api.Signal) {
	o.mu.Lock()
	o.sigs = append(o.sigs, sig)
	o.mu.Unlock()
}

func (o *countingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sigs)
}

func TestNotifier_SubscribeNotifyUnsubscribe(t *testing.T) {
	n := NewNotifier()
	a, b := &countingObserver{}, &countingObserver{}
	if !n.Subscribe(a) || !n.Subscribe(b) {
		t.Fatal("Subscribe failed")
	}
	if n.Subscribe(a) {
		t.Fatal("duplicate Subscribe must be a no-op")
	}
	if got := n.NotifyAll(api.Signal{ID: 3, Band: api.PollIn}); got != 2 {
		t.Fatalf("notified %d, want 2", got)
	}
	if !n.Unsubscribe(a) || n.Unsubscribe(a) {
		t.Fatal("Unsubscribe semantics broken")
	}
	n.NotifyAll(api.Signal{ID: 3, Band: api.PollIn})
	if a.count() != 1 || b.count() != 2 {
		t.Fatalf("a=%d b=%d, want 1 and 2", a.count(), b.count())
	}
	n.Clear()
	if n.Len() != 0 {
		t.Fatalf("Len after Clear = %d", n.Len())
	}
}

func TestNotifier_ZeroValueUsable(t *testing.T) {
	var n Notifier
	if n.NotifyAll(api.Signal{}) != 0 {
		t.Fatal("zero Notifier should have no observers")
	}
	n.Subscribe(&countingObserver{})
	if n.Len() != 1 {
		t.Fatal("Subscribe on zero Notifier failed")
	}
}

func TestNotifier_ConcurrentSubscribe(t *testing.T) {
	n := NewNotifier()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		o := &countingObserver{}
		go func() {
			defer wg.Done()
			n.Subscribe(o)
		}()
		go func() {
			defer wg.Done()
			n.NotifyAll(api.Signal{Band: api.PollIn})
		}()
	}
	wg.Wait()
	if n.Len() != 50 {
		t.Fatalf("Len = %d, want 50", n.Len())
	}
}

// funcObserver has a value receiver and a func field, so == on it panics.
type funcObserver struct {
	fn func(api.Signal)
}

func (o funcObserver) Notify(sig api.Signal) { o.fn(sig) }

func TestNotifier_RefusesUncomparableObserver(t *testing.T) {
	n := NewNotifier()
	obs := funcObserver{fn: func(api.Signal) {}}
	if n.Subscribe(obs) || n.Subscribe(obs) {
		t.Fatal("uncomparable observer accepted")
	}
	if n.Unsubscribe(obs) || n.Subscribe(nil) {
		t.Fatal("uncomparable or nil observer handled as subscribed")
	}
	if n.Len() != 0 {
		t.Fatalf("len = %d", n.Len())
	}
}
