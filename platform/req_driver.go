// File: platform/req_driver.go
// Package platform
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package platform

import (
	"context"
	"log"

	"github.com/momentics/hioload-chrdev/api"
	"github.com/momentics/hioload-chrdev/chrdev"
)

// ReqCompatible is the compatible string ReqDriver binds to.
const ReqCompatible = "ldddc,chrdev"

// ReqDriver registers one device per child of a matching node. Each child
// carries "reg" (the id), "label" and optionally "read-only".
type ReqDriver struct {
	reg    *chrdev.Registry
	logger *log.Logger
	opts   []chrdev.RegisterOption
}

var _ Driver = (*ReqDriver)(nil)

// NewReqDriver creates a driver registering into reg with opts applied to
// every device.
func NewReqDriver(reg *chrdev.Registry, logger *log.Logger, opts ...chrdev.RegisterOption) *ReqDriver {
	if logger == nil {
		logger = log.Default()
	}
	return &ReqDriver{reg: reg, logger: logger, opts: opts}
}

func (d *ReqDriver) Name() string         { return "chrdev-req" }
func (d *ReqDriver) Compatible() []string { return []string{ReqCompatible} }

// childID returns reg and label, or ok=false after logging which one is
// missing.
func (d *ReqDriver) childID(n, child *Node) (uint, string, bool) {
	if !child.PropertyPresent("reg") {
		d.logger.Printf("[platform] %s: property \"reg\" not present! Skipped", n.Name)
		return 0, "", false
	}
	id, err := child.ReadU32("reg")
	if err != nil {
		d.logger.Printf("[platform] %s: %v. Skipped", n.Name, err)
		return 0, "", false
	}
	if !child.PropertyPresent("label") {
		d.logger.Printf("[platform] %s: property \"label\" not present! Skipped", n.Name)
		return 0, "", false
	}
	label, err := child.ReadString("label")
	if err != nil {
		d.logger.Printf("[platform] %s: %v. Skipped", n.Name, err)
		return 0, "", false
	}
	return uint(id), label, true
}

// Probe registers the node's children. Only an empty or oversized child
// list fails the probe; per-child problems are logged.
func (d *ReqDriver) Probe(ctx context.Context, n *Node) error {
	count := n.ChildCount()
	if count == 0 {
		return api.NewError(api.ErrCodeNoDevice, "no child nodes").WithContext("node", n.Name)
	}
	if count > d.reg.MaxDevices() {
		return api.NewError(api.ErrCodeOutOfMemory, "too many child nodes").
			WithContext("node", n.Name).WithContext("count", count)
	}
	for _, child := range n.Children {
		if ctx.Err() != nil {
			return api.NewError(api.ErrCodeInterrupted, "probe interrupted").WithContext("node", n.Name)
		}
		id, label, ok := d.childID(n, child)
		if !ok {
			continue
		}
		ro := child.PropertyPresent("read-only")
		h, err := d.reg.Register(label, id, ro, d, n, d.opts...)
		if err != nil {
			d.logger.Printf("[platform] %s: unable to register %s: %v", n.Name, label, err)
			continue
		}
		h.Close()
	}
	return nil
}

// Remove unregisters the node's well-formed children.
func (d *ReqDriver) Remove(n *Node) error {
	for _, child := range n.Children {
		id, label, ok := d.childID(n, child)
		if !ok {
			continue
		}
		if err := d.reg.Unregister(label, id); err != nil {
			d.logger.Printf("[platform] %s: unable to unregister %s: %v", n.Name, label, err)
		}
	}
	return nil
}
