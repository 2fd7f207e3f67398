// control/platform.go
// Author: momentics <momentics@gmail.com>
//
// Host facts exposed as debug probes.

package control

import (
	"runtime"

	"github.com/momentics/hioload-chrdev/internal/storage"
)

// RegisterPlatformProbes adds platform.cpus and platform.page_size.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.page_size", func() any {
		return storage.PageSize()
	})
}
