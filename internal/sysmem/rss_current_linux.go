//go:build linux

package sysmem

import (
	"os"
	"strconv"
	"strings"
)

const statmPath = "/proc/self/statm"

// RSSBytes returns the current resident set size, read from
// /proc/self/statm. It falls back to the peak when procfs is unreadable.
func RSSBytes() uint64 {
	b, err := os.ReadFile(statmPath)
	if err != nil {
		return PeakRSSBytes()
	}
	n, ok := parseStatm(string(b), os.Getpagesize())
	if !ok {
		return PeakRSSBytes()
	}
	return n
}

// parseStatm converts the resident field (second column, in pages) to bytes.
func parseStatm(s string, pageSize int) (uint64, bool) {
	f := strings.Fields(s)
	if len(f) < 2 || pageSize <= 0 {
		return 0, false
	}
	pages, err := strconv.ParseUint(f[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return pages * uint64(pageSize), true
}
