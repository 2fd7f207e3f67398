// File: api/device.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Device-level DTOs and constants shared by the registry, drivers and callers.

package api

// MaxLabelLen bounds device labels (NAME_LEN minus the terminator).
const MaxLabelLen = 31

// Variant selects how a slot stores data.
type Variant int

const (
	// VariantRing is a circular buffer fed by a periodic producer.
	VariantRing Variant = iota
	// VariantFlat is a positional buffer written and read by callers.
	VariantFlat
)

func (v Variant) String() string {
	switch v {
	case VariantRing:
		return "ring"
	case VariantFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// DeviceInfo is the ioctl GETINFO payload plus registry bookkeeping.
type DeviceInfo struct {
	ID       uint    `json:"id"`
	Label    string  `json:"label"`
	ReadOnly bool    `json:"read_only"`
	Variant  Variant `json:"variant"`
	Name     string  `json:"name"`
	Buffered int     `json:"buffered"`
}

// Seek origins, numerically equal to io.SeekStart, io.SeekCurrent and
// io.SeekEnd.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// Ioctl command numbers.
const (
	IoctlBase      = 'C'
	IocGetInfo     = IoctlBase<<8 | 0
	IocSetReadOnly = IoctlBase<<8 | 1
)

// Signal is delivered to subscribers when a device changes readiness.
type Signal struct {
	ID   uint
	Band PollMask
}

// Observer receives asynchronous device notifications. Notify is called from
// the producer context and must not block.
type Observer interface {
	Notify(sig Signal)
}
