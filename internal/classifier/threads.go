package classifier

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// ThreadCount resolves the configured inference thread count. Zero selects
// the number of physical cores; any value is capped at the number of
// logical CPUs visible to the process.
func ThreadCount(configured int) int {
	available := runtime.NumCPU()

	if configured <= 0 {
		if physical := cpuid.CPU.PhysicalCores; physical > 0 {
			return min(physical, available)
		}
		return available
	}
	return min(configured, available)
}
