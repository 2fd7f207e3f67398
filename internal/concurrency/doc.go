// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-chrdev: a spin lock usable from the
// non-blocking producer context, the byte ring it guards, a channel-based
// wait queue for blocking consumers, an observer fan-out list, and a
// monotonic timer scheduler with synchronous cancellation.
//
// Nothing on the producer side of these types sleeps. WaitQueue.Wait and
// Scheduler.Cancel are the only blocking calls and belong to the consumer
// and control paths.
package concurrency
