// File: platform/bus.go
// Package platform
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bus matches description nodes against registered drivers by compatible
// string, walking the tree breadth-first.

package platform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-chrdev/api"
)

// Driver binds to nodes matching one of its compatible strings.
type Driver interface {
	Name() string
	Compatible() []string
	Probe(ctx context.Context, n *Node) error
	Remove(n *Node) error
}

// Bus is safe for concurrent use.
type Bus struct {
	logger *log.Logger

	mu      sync.Mutex
	drivers []Driver
	bound   map[*Node]Driver
	order   []*Node // probe order, for reverse removal
}

// NewBus creates an empty bus. A nil logger means log.Default().
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{logger: logger, bound: make(map[*Node]Driver)}
}

// RegisterDriver adds drv. Driver names are unique.
func (b *Bus) RegisterDriver(drv Driver) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.drivers {
		if d.Name() == drv.Name() {
			return api.NewError(api.ErrCodeBusy, "driver already registered").WithContext("driver", drv.Name())
		}
	}
	b.drivers = append(b.drivers, drv)
	return nil
}

func (b *Bus) match(n *Node) Driver {
	for _, d := range b.drivers {
		for _, c := range d.Compatible() {
			if n.IsCompatible(c) {
				return d
			}
		}
	}
	return nil
}

// walk visits root and its descendants breadth-first.
func walk(root *Node, visit func(*Node)) {
	if root == nil {
		return
	}
	q := queue.New()
	q.Add(root)
	for q.Length() > 0 {
		n := q.Remove().(*Node)
		visit(n)
		for _, c := range n.Children {
			if c != nil {
				q.Add(c)
			}
		}
	}
}

// Probe binds every unbound matching node under root. It returns how many
// nodes were bound; probe failures are logged and joined into the error.
func (b *Bus) Probe(ctx context.Context, root *Node) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var (
		bound int
		errs  []error
	)
	walk(root, func(n *Node) {
		if _, done := b.bound[n]; done {
			return
		}
		drv := b.match(n)
		if drv == nil {
			return
		}
		if err := drv.Probe(ctx, n); err != nil {
			b.logger.Printf("[platform] probe of %s by %s failed: %v", n.Name, drv.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
			return
		}
		b.bound[n] = drv
		b.order = append(b.order, n)
		bound++
	})
	return bound, errors.Join(errs...)
}

// Remove unbinds every bound node under root, last probed first.
func (b *Bus) Remove(root *Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	under := make(map[*Node]bool)
	walk(root, func(n *Node) { under[n] = true })

	var errs []error
	kept := b.order[:0]
	for i := len(b.order) - 1; i >= 0; i-- {
		n := b.order[i]
		if !under[n] {
			continue
		}
		drv := b.bound[n]
		if err := drv.Remove(n); err != nil {
			b.logger.Printf("[platform] remove of %s by %s failed: %v", n.Name, drv.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
		delete(b.bound, n)
	}
	for _, n := range b.order {
		if !under[n] {
			kept = append(kept, n)
		}
	}
	b.order = kept
	return errors.Join(errs...)
}

// Bound returns the number of bound nodes.
func (b *Bus) Bound() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bound)
}
