// control/hotreload.go
// Reload hook list shared by the config store and its users.
// TriggerSync gives deterministic ordering for tests and for the config
// store itself.

package control

import "sync"

// ReloadHooks is a list of component reload listeners. The zero value is
// ready to use.
type ReloadHooks struct {
	mu    sync.Mutex
	hooks []func()
}

// Register adds a new component reload listener.
func (rh *ReloadHooks) Register(fn func()) {
	rh.mu.Lock()
	rh.hooks = append(rh.hooks, fn)
	rh.mu.Unlock()
}

func (rh *ReloadHooks) snapshot() []func() {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return append([]func(){}, rh.hooks...)
}

// Trigger dispatches all hooks asynchronously.
func (rh *ReloadHooks) Trigger() {
	for _, fn := range rh.snapshot() {
		go fn()
	}
}

// TriggerSync invokes all hooks in registration order.
func (rh *ReloadHooks) TriggerSync() {
	for _, fn := range rh.snapshot() {
		fn()
	}
}

// Len returns the number of registered hooks.
func (rh *ReloadHooks) Len() int {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return len(rh.hooks)
}
