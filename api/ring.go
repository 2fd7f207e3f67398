// Package api
// Author: momentics@gmail.com
//
// Byte ring contract shared by producer and consumer paths.

package api

// ByteRing is a fixed-capacity circular byte store with one slot sacrificed
// to tell full from empty. Implementations are not self-synchronizing.
type ByteRing interface {
	// Write stores one byte, returns false if full.
	Write(b byte) bool
	// ReadSpan returns the readable bytes up to the wrap point.
	ReadSpan() []byte
	// AdvanceTail consumes n bytes.
	AdvanceTail(n int)
	// IsEmpty reports head == tail.
	IsEmpty() bool
	// IsFull reports (head+1) mod N == tail.
	IsFull() bool
	// Len returns current number of buffered bytes.
	Len() int
	// Cap returns usable capacity (N-1).
	Cap() int
}
