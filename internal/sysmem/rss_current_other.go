//go:build !linux

package sysmem

// RSSBytes reports the peak where the current resident size is not exposed.
func RSSBytes() uint64 { return PeakRSSBytes() }
