// Package api
// Author: momentics
//
// Readiness masks reported by device polling.

package api

import "strings"

// PollMask is a readiness bitmask in the style of poll(2) revents.
type PollMask uint32

const (
	PollIn     PollMask = 1 << iota // data available to read
	PollRdNorm                      // normal data readable
	PollOut                         // writable without blocking
	PollWrNorm                      // normal data writable
	PollHup                         // device went away
)

// Readable reports whether PollIn is set.
func (m PollMask) Readable() bool { return m&PollIn != 0 }

// Writable reports whether PollOut is set.
func (m PollMask) Writable() bool { return m&PollOut != 0 }

func (m PollMask) String() string {
	if m == 0 {
		return "0"
	}
	var parts []string
	for _, f := range []struct {
		bit  PollMask
		name string
	}{
		{PollIn, "IN"}, {PollRdNorm, "RDNORM"}, {PollOut, "OUT"},
		{PollWrNorm, "WRNORM"}, {PollHup, "HUP"},
	} {
		if m&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}
