// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with validation and hot-reload propagation.

package control

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ConfigStore is a dynamic key/value map with snapshot reads, validators
// and reload listeners.
type ConfigStore struct {
	mu         sync.RWMutex
	config     map[string]any
	validators []func(map[string]any) error
	hooks      ReloadHooks
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]any),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// Get returns one value.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// Int64 returns key as an integer, converting from any integer type, an
// integral float, a time.Duration or a decimal string.
func (cs *ConfigStore) Int64(key string) (int64, bool) {
	v, ok := cs.Get(key)
	if !ok {
		return 0, false
	}
	return AsInt64(v)
}

// AsInt64 converts v like ConfigStore.Int64 does.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case time.Duration:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 0, 64)
		return i, err == nil
	}
	return 0, false
}

// OnValidate registers a check run against every proposed merge before it
// is applied. The argument holds only the incoming keys.
func (cs *ConfigStore) OnValidate(fn func(map[string]any) error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.validators = append(cs.validators, fn)
}

// SetConfig merges new values and, once unlocked, runs reload listeners. A
// failing validator rejects the whole merge.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) error {
	cs.mu.Lock()
	for _, check := range cs.validators {
		if err := check(newCfg); err != nil {
			cs.mu.Unlock()
			return fmt.Errorf("control: config rejected: %w", err)
		}
	}
	for k, v := range newCfg {
		cs.config[k] = v
	}
	cs.mu.Unlock()
	cs.hooks.TriggerSync()
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.hooks.Register(fn)
}
