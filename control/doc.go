// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration, metrics and debug introspection for the device
// subsystem.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads with validated merges
//   - Reload hooks fired after every accepted config change
//   - Metrics snapshots fed from registry counters
//   - Debug probes and module-parameter parsing (key=value)
package control
