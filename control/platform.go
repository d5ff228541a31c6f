// control/platform.go
// Author: momentics <momentics@gmail.com>
//
// Process and host probes backed by gopsutil.

package control

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// RegisterPlatformProbes installs process and host resource probes.
// A probe whose source is unavailable reports nil.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.goroutines", func() any {
		return runtime.NumGoroutine()
	})

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		dp.RegisterProbe("process.rss_bytes", func() any {
			info, err := proc.MemoryInfo()
			if err != nil {
				return nil
			}
			return info.RSS
		})
		dp.RegisterProbe("process.open_fds", func() any {
			n, err := proc.NumFDs()
			if err != nil {
				return nil
			}
			return n
		})
	}

	dp.RegisterProbe("system.mem_used_percent", func() any {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return nil
		}
		return vm.UsedPercent
	})
}
