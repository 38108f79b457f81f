//go:build !unix

package sysmem

// PeakRSSBytes falls back to the Go runtime's obtained-from-OS total.
func PeakRSSBytes() uint64 { return goRuntimeBytes() }
