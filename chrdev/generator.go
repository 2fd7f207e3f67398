// Package chrdev
// Author: momentics <momentics@gmail.com>

package chrdev

import "sync/atomic"

// Generator yields the next byte a producer writes.
type Generator func() byte

// Alphabet returns a generator cycling 'A'..'Z', starting at 'A'. Safe for
// concurrent use.
func Alphabet() Generator {
	var n atomic.Uint64
	return func() byte {
		return 'A' + byte((n.Add(1)-1)%26)
	}
}

// Sequence returns a generator cycling through b. It panics on empty input.
func Sequence(b ...byte) Generator {
	if len(b) == 0 {
		panic("chrdev: empty sequence")
	}
	src := append([]byte(nil), b...)
	var n atomic.Uint64
	return func() byte {
		return src[(n.Add(1)-1)%uint64(len(src))]
	}
}
