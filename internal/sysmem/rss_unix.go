//go:build unix

package sysmem

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PeakRSSBytes returns the peak resident set size of this process.
// getrusage reports ru_maxrss in KiB on Linux and the BSDs, bytes on Darwin.
func PeakRSSBytes() uint64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil || ru.Maxrss <= 0 {
		return goRuntimeBytes()
	}
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		return uint64(ru.Maxrss)
	}
	return uint64(ru.Maxrss) * 1024
}
