// Package sysmem reports process memory for the progress line and gives the
// kernel read-ahead hints for large sequential file scans.
package sysmem

import "runtime"

// MB converts bytes to mebibytes for display.
func MB(b uint64) float64 { return float64(b) / (1 << 20) }

// goRuntimeBytes is the fallback when the OS cannot report RSS.
func goRuntimeBytes() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys
}
