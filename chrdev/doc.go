// Package chrdev
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multi-instance character-device subsystem: a fixed-capacity Registry of
// logical devices indexed by caller-chosen ids. A ring device is fed by a
// periodic Producer running in a non-blocking context and drained by
// Handle.Read, which may block, fail fast, or be driven by readiness
// polling and subscriber notification. A flat device is a positional
// buffer that callers read, write, seek and map directly.
//
// Per device, two locks split the work: a blocking mutex serializes
// multi-step consumer reads, and a spin lock guards the ring cursors shared
// with the producer. The producer only ever takes the spin lock and wakes
// waiters and subscribers after releasing it.
//
// Unregister is a barrier: it stops the producer synchronously, wakes
// blocked readers, waits for in-flight reads and only then drops the
// device's storage reference.
package chrdev
