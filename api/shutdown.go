// File: api/shutdown.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by aggregates that own devices and
// timers. Shutdown unregisters what they registered and stops what they
// started; calling it again returns the first result.
type GracefulShutdown interface {
	Shutdown() error
}
